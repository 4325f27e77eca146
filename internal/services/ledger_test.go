package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/diaverse/backend/internal/models"
)

func TestDebitWallet(t *testing.T) {
	t.Run("successful debit", func(t *testing.T) {
		wallet := models.Wallet{OwnerID: 1, Balance: 50}

		after, err := DebitWallet(wallet, 10)
		assert.NoError(t, err)
		assert.Equal(t, int64(40), after.Balance)
		assert.Equal(t, int64(50), wallet.Balance) // input untouched
	})

	t.Run("exact balance drains to zero", func(t *testing.T) {
		after, err := DebitWallet(models.Wallet{Balance: 10}, 10)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), after.Balance)
	})

	t.Run("overdraw is rejected with no partial debit", func(t *testing.T) {
		wallet := models.Wallet{OwnerID: 1, Balance: 5}

		after, err := DebitWallet(wallet, 10)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, int64(5), after.Balance)
	})
}

func TestCreditWallet(t *testing.T) {
	after := CreditWallet(models.Wallet{Balance: 5}, 100)
	assert.Equal(t, int64(105), after.Balance)
}

func TestDebitRevenue(t *testing.T) {
	t.Run("debits only the spendable balance bucket", func(t *testing.T) {
		account := models.RevenueAccount{AuthorID: 2, Balance: 100, Pending: 30, Withdrawn: 70}

		after, err := DebitRevenue(account, 40)
		assert.NoError(t, err)
		assert.Equal(t, int64(60), after.Balance)
		assert.Equal(t, int64(30), after.Pending)
		assert.Equal(t, int64(70), after.Withdrawn)
	})

	t.Run("pending funds cannot cover a debit", func(t *testing.T) {
		account := models.RevenueAccount{Balance: 10, Pending: 1000}

		_, err := DebitRevenue(account, 50)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})
}

func TestCreditRevenue(t *testing.T) {
	after := CreditRevenue(models.RevenueAccount{Balance: 1}, 9)
	assert.Equal(t, int64(10), after.Balance)
}
