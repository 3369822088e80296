package services

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"git.solsynth.dev/hypernet/meet/pkg/internal/database"
	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/google/uuid"
	"github.com/livekit/protocol/livekit"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

type fakeRoomService struct {
	mu      sync.Mutex
	created []*livekit.CreateRoomRequest
	deleted []string
	removed []string
	peers   []*livekit.ParticipantInfo
}

func (v *fakeRoomService) CreateRoom(_ context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.created = append(v.created, req)
	return &livekit.Room{Name: req.Name, MaxParticipants: req.MaxParticipants}, nil
}

func (v *fakeRoomService) DeleteRoom(_ context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deleted = append(v.deleted, req.Room)
	return &livekit.DeleteRoomResponse{}, nil
}

func (v *fakeRoomService) ListParticipants(_ context.Context, _ *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return &livekit.ListParticipantsResponse{Participants: v.peers}, nil
}

func (v *fakeRoomService) RemoveParticipant(_ context.Context, req *livekit.RoomParticipantIdentity) (*livekit.RemoveParticipantResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.removed = append(v.removed, req.Identity)
	return &livekit.RemoveParticipantResponse{}, nil
}

func (v *fakeRoomService) Removed() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.removed...)
}

// setupTestEnv points the package at a private file-backed sqlite database and
// a fake LiveKit. Several connections are open so concurrent joins really race
// on the database.
func setupTestEnv(t *testing.T) *fakeRoomService {
	t.Helper()

	dialector, err := database.NewDialector("sqlite", filepath.Join(t.TempDir(), "meet.db"))
	if err != nil {
		t.Fatalf("sqlite dialector: %v", err)
	}
	return setupTestEnvWith(t, dialector, "")
}

// setupTestEnvWith migrates the tables under the given prefix, the tables are
// dropped again when the test ends.
func setupTestEnvWith(t *testing.T, dialector gorm.Dialector, prefix string) *fakeRoomService {
	t.Helper()

	db, err := gorm.Open(dialector, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql database: %v", err)
	}
	sqlDB.SetMaxOpenConns(8)

	if err := database.RunMigration(db); err != nil {
		t.Fatalf("run migration: %v", err)
	}

	prevDB, prevLk := database.C, Lk
	lk := &fakeRoomService{}
	database.C = db
	Lk = lk

	t.Cleanup(func() {
		resetParticipantDeadlines()
		database.C, Lk = prevDB, prevLk
		_ = db.Migrator().DropTable(database.AutoMaintainRange...)
		_ = sqlDB.Close()
	})

	return lk
}

func resetParticipantDeadlines() {
	participantDeadlinesLock.Lock()
	defer participantDeadlinesLock.Unlock()
	for id, timer := range participantDeadlines {
		timer.Stop()
		delete(participantDeadlines, id)
	}
}

func createTestAccount(t *testing.T, name string, tier models.PlanTier) models.Account {
	t.Helper()

	account := models.Account{Name: name, Nick: strings.ToUpper(name), Email: name + "@example.com"}
	if err := database.C.Create(&account).Error; err != nil {
		t.Fatalf("create account %s: %v", name, err)
	}
	if tier != models.PlanFree {
		if _, err := SetSubscription(account.ID, tier, nil); err != nil {
			t.Fatalf("set subscription of %s: %v", name, err)
		}
	}
	return account
}

// createTestCall inserts a call directly, a nil capacity mimics calls recorded
// before the capacity was stored on the call.
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

// guestIdentity is what a guest presents to act on its own seat.
func guestIdentity(participant models.Participant) ParticipantIdentity {
	return ParticipantIdentity{ParticipantID: participant.ID, SeatSecret: participant.SeatSecret}
}

func joinAsGuest(t *testing.T, call models.Call, name string) models.Participant {
	t.Helper()

	participant, err := JoinCall(JoinRequest{CallName: call.Name, Username: name})
	if err != nil {
		t.Fatalf("guest %s join: %v", name, err)
	}
	return participant
}

func joinAsUser(t *testing.T, call models.Call, user models.Account) models.Participant {
	t.Helper()

	participant, err := JoinCall(JoinRequest{CallName: call.Name, User: lo.ToPtr(user)})
	if err != nil {
		t.Fatalf("user %s join: %v", user.Name, err)
	}
	return participant
}

func mustCountJoined(t *testing.T, call models.Call) int64 {
	t.Helper()

	count, err := CountJoinedParticipants(call.ID)
	if err != nil {
		t.Fatalf("count joined: %v", err)
	}
	return count
}
