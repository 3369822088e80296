package api

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"git.solsynth.dev/hypernet/meet/pkg/internal/database"
	"git.solsynth.dev/hypernet/meet/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"git.solsynth.dev/hypernet/meet/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/livekit/protocol/livekit"
	"github.com/spf13/viper"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type nopRoomService struct{}

func (nopRoomService) CreateRoom(_ context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error) {
	return &livekit.Room{Name: req.Name}, nil
}

func (nopRoomService) DeleteRoom(context.Context, *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error) {
	return &livekit.DeleteRoomResponse{}, nil
}

func (nopRoomService) ListParticipants(context.Context, *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error) {
	return &livekit.ListParticipantsResponse{}, nil
}

func (nopRoomService) RemoveParticipant(context.Context, *livekit.RoomParticipantIdentity) (*livekit.RemoveParticipantResponse, error) {
	return &livekit.RemoveParticipantResponse{}, nil
}

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	dialector, err := database.NewDialector("sqlite", filepath.Join(t.TempDir(), "meet.db"))
	if err != nil {
		t.Fatalf("sqlite dialector: %v", err)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, _ := db.DB()
	if err := database.RunMigration(db); err != nil {
		t.Fatalf("run migration: %v", err)
	}

	prevDB, prevLk := database.C, services.Lk
	database.C, services.Lk = db, nopRoomService{}

	viper.Set("security.jwt_secret", "testing")
	viper.Set("billing.secret", "billing-testing")

	t.Cleanup(func() {
		database.C, services.Lk = prevDB, prevLk
		viper.Set("security.jwt_secret", "")
		viper.Set("billing.secret", "")
		_ = sqlDB.Close()
	})

	app := fiber.New(fiber.Config{
		JSONEncoder: jsoniter.ConfigCompatibleWithStandardLibrary.Marshal,
		JSONDecoder: jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal,
	})
	MapAPIs(app, "/api", exts.NewRateLimiter(1000, 1000))
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, _ := jsoniter.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if len(token) > 0 {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func createTestAccount(t *testing.T, name string) (models.Account, string) {
	t.Helper()

	account, err := services.RegisterAccount(name, strings.ToUpper(name), name+"@example.com", "password")
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	token, err := services.EncodeAccountToken(account)
	if err != nil {
		t.Fatalf("encode token: %v", err)
	}
	return account, token
}

func createTestCall(t *testing.T, owner models.Account, capacity *int) models.Call {
	t.Helper()

	call := models.Call{
		Name:            uuid.NewString(),
		Status:          models.CallStatusCreated,
		MaxParticipants: capacity,
		AccountID:       owner.ID,
	}
	if err := database.C.Create(&call).Error; err != nil {
		t.Fatalf("create call: %v", err)
	}
	return call
}
