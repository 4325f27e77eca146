package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/diaverse/backend/internal/models"
)

func expectGenerationCostRules(mock sqlmock.Sqlmock, costPerVoice int64) {
	mock.ExpectQuery("SELECT id, table_name, min_measure, max_measure, price_dias FROM pricing_rules").
		WithArgs(models.TableVoiceGenerationCost).
		WillReturnRows(sqlmock.NewRows([]string{"id", "table_name", "min_measure", "max_measure", "price_dias"}).
			AddRow(1, models.TableVoiceGenerationCost, 0, nil, costPerVoice))
}

func expectPublishedChapter(mock sqlmock.Sqlmock, chapterID, authorID int64, status string) {
	mock.ExpectQuery("SELECT id, author_id, kind, status, access_type, char_count FROM contents WHERE id = \\$1 AND kind = \\$2").
		WithArgs(chapterID, models.ContentChapter).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "kind", "status", "access_type", "char_count"}).
			AddRow(chapterID, authorID, models.ContentChapter, status, models.AccessFree, 5000))
}

func TestVoiceOrderService_OrderVoices(t *testing.T) {
	authorID := int64(42)
	chapterID := int64(10)

	t.Run("successful order charges once and enqueues one job", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewVoiceOrderService(db, redisClient, NewPricingService(db), nopNotifier{})

		expectPublishedChapter(mock, chapterID, authorID, models.ContentStatusPublished)
		mock.ExpectQuery("SELECT voice_id FROM voice_orders WHERE chapter_id = \\$1").
			WithArgs(chapterID).
			WillReturnRows(sqlmock.NewRows([]string{"voice_id"}))
		expectGenerationCostRules(mock, 2)

		mock.ExpectBegin()
		expectRevenueLock(mock, authorID, 100, 0, 0)
		mock.ExpectExec("UPDATE revenue_accounts SET balance = \\$1").
			WithArgs(int64(98), int64(0), int64(0), sqlmock.AnyArg(), authorID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(authorID, models.AccountRevenue, int64(-2), models.EntryVoiceGeneration, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("INSERT INTO voice_orders").
			WithArgs(chapterID, int64(7), models.VoiceOrderPending, int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
		mock.ExpectCommit()

		redisMock.Regexp().ExpectRPush(synthesisQueueKey, `\{"order_id":1,"chapter_id":10,"voice_id":7,.*\}`).SetVal(1)

		result, err := service.OrderVoices(authorID, chapterID, []int64{7})
		assert.NoError(t, err)
		assert.Equal(t, []int64{7}, result.OrderedVoices)
		assert.Empty(t, result.SkippedVoices)
		assert.Equal(t, int64(2), result.TotalCost)
		assert.Equal(t, int64(98), result.BalanceAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("already ordered voice is skipped without charge", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewVoiceOrderService(db, redisClient, NewPricingService(db), nopNotifier{})

		expectPublishedChapter(mock, chapterID, authorID, models.ContentStatusPublished)
		mock.ExpectQuery("SELECT voice_id FROM voice_orders WHERE chapter_id = \\$1").
			WithArgs(chapterID).
			WillReturnRows(sqlmock.NewRows([]string{"voice_id"}).AddRow(int64(7)))
		expectGenerationCostRules(mock, 2)
		mock.ExpectQuery("SELECT balance, pending, withdrawn FROM revenue_accounts WHERE author_id = \\$1").
			WithArgs(authorID).
			WillReturnRows(sqlmock.NewRows([]string{"balance", "pending", "withdrawn"}).AddRow(100, 0, 0))

		result, err := service.OrderVoices(authorID, chapterID, []int64{7})
		assert.NoError(t, err)
		assert.Empty(t, result.OrderedVoices)
		assert.Equal(t, []int64{7}, result.SkippedVoices)
		assert.Equal(t, int64(0), result.TotalCost)
		assert.Equal(t, int64(100), result.BalanceAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("insufficient revenue balance rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, _ := redismock.NewClientMock()
		service := NewVoiceOrderService(db, redisClient, NewPricingService(db), nopNotifier{})

		expectPublishedChapter(mock, chapterID, authorID, models.ContentStatusPublished)
		mock.ExpectQuery("SELECT voice_id FROM voice_orders WHERE chapter_id = \\$1").
			WithArgs(chapterID).
			WillReturnRows(sqlmock.NewRows([]string{"voice_id"}))
		expectGenerationCostRules(mock, 2)

		mock.ExpectBegin()
		expectRevenueLock(mock, authorID, 5, 0, 0)
		mock.ExpectRollback()

		_, err = service.OrderVoices(authorID, chapterID, []int64{1, 2, 3})
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unpublished chapter cannot be ordered", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, _ := redismock.NewClientMock()
		service := NewVoiceOrderService(db, redisClient, NewPricingService(db), nopNotifier{})

		expectPublishedChapter(mock, chapterID, authorID, "DRAFT")

		_, err = service.OrderVoices(authorID, chapterID, []int64{7})
		assert.ErrorIs(t, err, ErrChapterNotPublished)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("someone else's chapter cannot be ordered", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, _ := redismock.NewClientMock()
		service := NewVoiceOrderService(db, redisClient, NewPricingService(db), nopNotifier{})

		expectPublishedChapter(mock, chapterID, int64(99), models.ContentStatusPublished)

		_, err = service.OrderVoices(authorID, chapterID, []int64{7})
		assert.ErrorIs(t, err, ErrChapterNotPublished)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVoiceOrderService_CompleteOrder(t *testing.T) {
	t.Run("completion notifies the author", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		notifier := newCaptureNotifier()
		service := NewVoiceOrderService(db, nil, NewPricingService(db), notifier)

		mock.ExpectQuery("UPDATE voice_orders SET status = \\$1, updated_at = NOW\\(\\) WHERE id = \\$2 AND status = \\$3 RETURNING chapter_id, voice_id").
			WithArgs(models.VoiceOrderReady, int64(1), models.VoiceOrderPending).
			WillReturnRows(sqlmock.NewRows([]string{"chapter_id", "voice_id"}).AddRow(int64(10), int64(7)))
		mock.ExpectQuery("SELECT author_id FROM contents WHERE id = \\$1").
			WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"author_id"}).AddRow(int64(42)))

		err = service.CompleteOrder(1, true)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())

		select {
		case call := <-notifier.calls:
			assert.Equal(t, int64(42), call.RecipientID)
			assert.Equal(t, models.NotifyVoiceReady, call.Type)
		case <-time.After(time.Second):
			t.Fatal("expected a completion notification")
		}
	})

	t.Run("failed synthesis notifies with the failure type", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		notifier := newCaptureNotifier()
		service := NewVoiceOrderService(db, nil, NewPricingService(db), notifier)

		mock.ExpectQuery("UPDATE voice_orders SET status = \\$1").
			WithArgs(models.VoiceOrderFailed, int64(1), models.VoiceOrderPending).
			WillReturnRows(sqlmock.NewRows([]string{"chapter_id", "voice_id"}).AddRow(int64(10), int64(7)))
		mock.ExpectQuery("SELECT author_id FROM contents WHERE id = \\$1").
			WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"author_id"}).AddRow(int64(42)))

		err = service.CompleteOrder(1, false)
		assert.NoError(t, err)

		select {
		case call := <-notifier.calls:
			assert.Equal(t, models.NotifyVoiceFailed, call.Type)
		case <-time.After(time.Second):
			t.Fatal("expected a failure notification")
		}
	})

	t.Run("completing a non-pending order fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewVoiceOrderService(db, nil, NewPricingService(db), nopNotifier{})

		mock.ExpectQuery("UPDATE voice_orders SET status = \\$1").
			WithArgs(models.VoiceOrderReady, int64(1), models.VoiceOrderPending).
			WillReturnRows(sqlmock.NewRows([]string{"chapter_id", "voice_id"}))

		err = service.CompleteOrder(1, true)
		assert.ErrorIs(t, err, ErrAlreadyDecided)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
