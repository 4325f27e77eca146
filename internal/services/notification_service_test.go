package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/diaverse/backend/internal/models"
)

func TestNotificationService_CreateAsync(t *testing.T) {
	t.Run("stores the notification and queues a delivery job", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewNotificationService(db, redisClient)

		mock.ExpectExec("INSERT INTO notifications").
			WithArgs(int64(42), models.NotifyContentSold, "Chapter sold", "Your chapter sold for 10 dias.",
				sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT email FROM users WHERE id = \\$1").
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("author@example.com"))

		redisMock.Regexp().ExpectRPush("notification_queue", `\{.*"email":"author@example.com"\}`).SetVal(1)

		service.CreateAsync(42, models.NotifyContentSold, "Chapter sold", "Your chapter sold for 10 dias.",
			map[string]any{"content_id": 10})

		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("no queue push when redis is absent", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewNotificationService(db, nil)

		mock.ExpectExec("INSERT INTO notifications").
			WithArgs(int64(42), models.NotifyWithdrawalApproved, "Withdrawal approved", "Paid out.",
				sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		service.CreateAsync(42, models.NotifyWithdrawalApproved, "Withdrawal approved", "Paid out.", nil)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
