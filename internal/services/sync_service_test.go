package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/lesson-sync-service/internal/events"
	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories"
	"github.com/SAP-F-2025/lesson-sync-service/internal/validator"
	"github.com/SAP-F-2025/lesson-sync-service/internal/ws"
	"gorm.io/datatypes"
)

// fakeWebService is a scripted ws.LessonWebService for sync tests.
type fakeWebService struct {
	mu sync.Mutex

	lesson        *models.Lesson
	accessInfo    *models.AccessInfo
	validPassword string
	finishFields  []FinishFieldSpec
	processErr    error
	finishErr     error
	fetchErr      error
	processDelay  time.Duration
	processedData []map[string]string
	finishCalls   int
	viewLogs      int
}

type FinishFieldSpec struct {
	Name  string
	Value string
}

func newFakeWebService() *fakeWebService {
	return &fakeWebService{
		lesson: &models.Lesson{ID: 1, CourseID: 7, Grade: 100},
		accessInfo: &models.AccessInfo{
			LessonID:      1,
			AttemptsCount: 0,
			FirstPageID:   10,
		},
	}
}

func (f *fakeWebService) GetLessonByID(ctx context.Context, siteID string, lessonID int64) (*models.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.lesson, nil
}

func (f *fakeWebService) GetLessonWithPassword(ctx context.Context, siteID string, lessonID int64, password string) (*models.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.validPassword == "" {
		return f.lesson, nil
	}
	lesson := *f.lesson
	if password == f.validPassword {
		ongoing := 1
		lesson.Ongoing = &ongoing
	}
	return &lesson, nil
}

func (f *fakeWebService) GetAccessInformation(ctx context.Context, siteID string, lessonID int64) (*models.AccessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.accessInfo, nil
}

func (f *fakeWebService) GetPages(ctx context.Context, siteID string, lessonID int64, password string) ([]models.PageWithAnswers, error) {
	return nil, nil
}

func (f *fakeWebService) GetPagesPossibleJumps(ctx context.Context, siteID string, lessonID int64) (models.PageJumps, error) {
	return nil, nil
}

func (f *fakeWebService) ProcessPage(ctx context.Context, siteID string, lessonID, pageID int64, fields map[string]string, password string) (*ws.ProcessPageResponse, error) {
	if f.processDelay > 0 {
		time.Sleep(f.processDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processErr != nil {
		return nil, f.processErr
	}
	f.processedData = append(f.processedData, fields)
	return &ws.ProcessPageResponse{}, nil
}

func (f *fakeWebService) FinishRetake(ctx context.Context, siteID string, lessonID int64, password string, outOfTime bool) (*ws.FinishRetakeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishCalls++
	if f.finishErr != nil {
		return nil, f.finishErr
	}
	resp := &ws.FinishRetakeResponse{}
	for _, field := range f.finishFields {
		resp.Data = append(resp.Data, ws.FinishField{Name: field.Name, Value: field.Value})
	}
	return resp, nil
}

func (f *fakeWebService) LogPageViewed(ctx context.Context, siteID string, lessonID, pageID int64, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewLogs++
	return nil
}

func (f *fakeWebService) sentAnswers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var answers []string
	for _, fields := range f.processedData {
		answers = append(answers, fields["answer"])
	}
	return answers
}

type syncFixture struct {
	sync      SyncService
	repo      repositories.Repository
	fake      *fakeWebService
	publisher *events.MockEventPublisher
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	repo, db := newTestStore(t)
	logger := testLogger()
	fake := newFakeWebService()
	publisher := events.NewMockEventPublisher(logger)
	lesson := NewLessonService(logger)
	offline := NewOfflineService(repo, db, logger, validator.New(), lesson)
	password := NewPasswordService(repo, fake, nil, logger)
	syncSvc := NewSyncService(repo, fake, offline, password, nil, publisher, logger, 0)
	return &syncFixture{sync: syncSvc, repo: repo, fake: fake, publisher: publisher}
}

func storedAttempt(retake int, pageID, timemod int64, answer string) *models.PageAttempt {
	return &models.PageAttempt{
		SiteID:       "site1",
		LessonID:     1,
		Retake:       retake,
		PageID:       pageID,
		Timemodified: timemod,
		CourseID:     7,
		Data:         datatypes.JSON(`{"answer":"` + answer + `"}`),
	}
}

func TestSyncLessonSendsAttemptsInOrder(t *testing.T) {
	ctx := context.Background()
	fx := newSyncFixture(t)

	for i, answer := range []string{"third", "first", "second"} {
		times := []int64{300, 100, 200}
		if err := fx.repo.Attempt().Create(ctx, nil, storedAttempt(0, int64(20+i), times[i], answer)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	result, err := fx.sync.SyncLesson(ctx, "site1", 1, SyncOptions{})
	if err != nil {
		t.Fatalf("SyncLesson: %v", err)
	}
	if !result.Updated {
		t.Error("expected the lesson to be updated")
	}
	if result.State != SyncStateDone {
		t.Errorf("expected done state, got %s", result.State)
	}

	sent := fx.fake.sentAnswers()
	want := []string{"first", "second", "third"}
	if len(sent) != len(want) {
		t.Fatalf("expected %d sends, got %d", len(want), len(sent))
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("send %d = %q, want %q", i, sent[i], want[i])
		}
	}

	has, err := fx.repo.Attempt().HasAttempts(ctx, "site1", 1)
	if err != nil {
		t.Fatalf("HasAttempts: %v", err)
	}
	if has {
		t.Error("sent attempts must be removed from the store")
	}
}

func TestSyncLessonDiscardsStaleRetakes(t *testing.T) {
	ctx := context.Background()
	fx := newSyncFixture(t)
	fx.fake.accessInfo.AttemptsCount = 2

	// Two attempts from an older retake, one from the current.
	for _, a := range []*models.PageAttempt{
		storedAttempt(1, 20, 100, "old-a"),
		storedAttempt(1, 30, 200, "old-b"),
		storedAttempt(2, 20, 300, "current"),
	} {
		if err := fx.repo.Attempt().Create(ctx, nil, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	result, err := fx.sync.SyncLesson(ctx, "site1", 1, SyncOptions{})
	if err != nil {
		t.Fatalf("SyncLesson: %v", err)
	}

	if len(result.Warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", result.Warnings)
	}
	sent := fx.fake.sentAnswers()
	if len(sent) != 1 || sent[0] != "current" {
		t.Errorf("expected only the current attempt to be sent, got %v", sent)
	}
}

func TestSyncLessonBlocked(t *testing.T) {
	ctx := context.Background()
	fx := newSyncFixture(t)

	fx.sync.Block("site1", 1)
	defer fx.sync.Unblock("site1", 1)

	_, err := fx.sync.SyncLesson(ctx, "site1", 1, SyncOptions{})
	if !IsSyncBlocked(err) {
		t.Fatalf("expected a sync-blocked error, got %v", err)
	}

	// IgnoreBlock bypasses the registry.
	if _, err := fx.sync.SyncLesson(ctx, "site1", 1, SyncOptions{IgnoreBlock: true}); err != nil {
		t.Fatalf("SyncLesson with IgnoreBlock: %v", err)
	}
}

func TestSyncLessonRejectionVersusTransport(t *testing.T) {
	ctx := context.Background()

	t.Run("rejection drops the attempt and warns", func(t *testing.T) {
		fx := newSyncFixture(t)
		fx.fake.processErr = &ws.BusinessRejection{Op: "process page", Message: "retake already finished"}

		if err := fx.repo.Attempt().Create(ctx, nil, storedAttempt(0, 20, 100, "x")); err != nil {
			t.Fatalf("Create: %v", err)
		}

		result, err := fx.sync.SyncLesson(ctx, "site1", 1, SyncOptions{})
		if err != nil {
			t.Fatalf("SyncLesson: %v", err)
		}
		if len(result.Warnings) != 1 {
			t.Errorf("expected one warning, got %v", result.Warnings)
		}
		if !result.Updated {
			t.Error("a rejection still counts as remote change")
		}

		has, err := fx.repo.Attempt().HasAttempts(ctx, "site1", 1)
		if err != nil {
			t.Fatalf("HasAttempts: %v", err)
		}
		if has {
			t.Error("rejected attempts must be removed")
		}
	})

	t.Run("transport failure aborts and preserves", func(t *testing.T) {
		fx := newSyncFixture(t)
		fx.fake.processErr = &ws.TransportError{Op: "process page", Err: errors.New("connection refused")}

		if err := fx.repo.Attempt().Create(ctx, nil, storedAttempt(0, 20, 100, "x")); err != nil {
			t.Fatalf("Create: %v", err)
		}

		_, err := fx.sync.SyncLesson(ctx, "site1", 1, SyncOptions{})
		if err == nil {
			t.Fatal("expected the sync to fail")
		}
		if fx.sync.State("site1", 1) != SyncStateFailed {
			t.Errorf("expected failed state, got %s", fx.sync.State("site1", 1))
		}

		has, herr := fx.repo.Attempt().HasAttempts(ctx, "site1", 1)
		if herr != nil {
			t.Fatalf("HasAttempts: %v", herr)
		}
		if !has {
			t.Error("attempts must survive a transport failure")
		}
	})
}

func TestSyncLessonFinishesRetake(t *testing.T) {
	ctx := context.Background()
	fx := newSyncFixture(t)
	fx.fake.finishFields = []FinishFieldSpec{
		{Name: "reviewlesson", Value: "https://lms.example.com/mod/lesson/view.php?id=5&pageid=42"},
	}

	retake := &models.RetakeState{
		SiteID:       "site1",
		LessonID:     1,
		Retake:       0,
		CourseID:     7,
		Finished:     true,
		Timemodified: 100,
	}
	if err := fx.repo.Retake().Save(ctx, nil, retake); err != nil {
		t.Fatalf("Save retake: %v", err)
	}

	result, err := fx.sync.SyncLesson(ctx, "site1", 1, SyncOptions{})
	if err != nil {
		t.Fatalf("SyncLesson: %v", err)
	}
	if !result.Updated {
		t.Error("expected the lesson to be updated")
	}
	if fx.fake.finishCalls != 1 {
		t.Errorf("expected one finish call, got %d", fx.fake.finishCalls)
	}

	if _, err := fx.repo.Retake().Get(ctx, "site1", 1); !repositories.IsNotFoundError(err) {
		t.Errorf("retake row must be removed, got %v", err)
	}

	marker, err := fx.sync.GetRetakeFinishedInSync(ctx, "site1", 1)
	if err != nil {
		t.Fatalf("GetRetakeFinishedInSync: %v", err)
	}
	if marker == nil {
		t.Fatal("expected the finished-in-sync marker")
	}
	if marker.PageID != 42 {
		t.Errorf("expected review page 42, got %d", marker.PageID)
	}

	if err := fx.sync.DeleteRetakeFinishedInSync(ctx, "site1", 1); err != nil {
		t.Fatalf("DeleteRetakeFinishedInSync: %v", err)
	}
	marker, err = fx.sync.GetRetakeFinishedInSync(ctx, "site1", 1)
	if err != nil {
		t.Fatalf("GetRetakeFinishedInSync: %v", err)
	}
	if marker != nil {
		t.Error("expected the marker to be gone")
	}
}

func TestSyncLessonUnfinishedRetakeIsDropped(t *testing.T) {
	ctx := context.Background()
	fx := newSyncFixture(t)

	retake := &models.RetakeState{
		SiteID:   "site1",
		LessonID: 1,
		Retake:   0,
		CourseID: 7,
	}
	if err := fx.repo.Retake().Save(ctx, nil, retake); err != nil {
		t.Fatalf("Save retake: %v", err)
	}

	if _, err := fx.sync.SyncLesson(ctx, "site1", 1, SyncOptions{}); err != nil {
		t.Fatalf("SyncLesson: %v", err)
	}
	if fx.fake.finishCalls != 0 {
		t.Errorf("unfinished retakes must not be finished remotely, got %d calls", fx.fake.finishCalls)
	}
	if _, err := fx.repo.Retake().Get(ctx, "site1", 1); !repositories.IsNotFoundError(err) {
		t.Errorf("retake row must be removed, got %v", err)
	}
}

func TestSyncLessonConcurrentCallersJoin(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrency test in short mode")
	}
	ctx := context.Background()
	fx := newSyncFixture(t)
	fx.fake.processDelay = 50 * time.Millisecond

	if err := fx.repo.Attempt().Create(ctx, nil, storedAttempt(0, 20, 100, "x")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const callers = 4
	var wg sync.WaitGroup
	results := make([]*SyncResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fx.sync.SyncLesson(ctx, "site1", 1, SyncOptions{})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
	}
	if got := len(fx.fake.sentAnswers()); got != 1 {
		t.Errorf("expected the attempt to be sent once, got %d sends", got)
	}
}

func TestSyncLessonRecordsLastSync(t *testing.T) {
	ctx := context.Background()
	fx := newSyncFixture(t)

	before, err := fx.sync.LastSync(ctx, "site1", 1)
	if err != nil {
		t.Fatalf("LastSync: %v", err)
	}
	if before != nil {
		t.Fatal("expected no sync record yet")
	}

	if _, err := fx.sync.SyncLesson(ctx, "site1", 1, SyncOptions{}); err != nil {
		t.Fatalf("SyncLesson: %v", err)
	}

	after, err := fx.sync.LastSync(ctx, "site1", 1)
	if err != nil {
		t.Fatalf("LastSync: %v", err)
	}
	if after == nil {
		t.Fatal("expected a sync record")
	}
	if after.Time.IsZero() {
		t.Error("expected a recorded sync time")
	}
}

func TestSyncAllLessonsPublishesEvents(t *testing.T) {
	ctx := context.Background()
	fx := newSyncFixture(t)

	if err := fx.repo.Attempt().Create(ctx, nil, storedAttempt(0, 20, 100, "x")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	results, err := fx.sync.SyncAllLessons(ctx, "site1")
	if err != nil {
		t.Fatalf("SyncAllLessons: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}

	var autoSynced int
	for _, event := range fx.publisher.GetPublishedEvents() {
		if event.Type == events.TypeAutoSynced {
			autoSynced++
		}
	}
	if autoSynced != 1 {
		t.Errorf("expected one auto-synced event, got %d", autoSynced)
	}
}

func TestSyncAllSitesSweepsStoredSites(t *testing.T) {
	ctx := context.Background()
	fx := newSyncFixture(t)

	if err := fx.repo.Attempt().Create(ctx, nil, storedAttempt(0, 20, 100, "a")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	other := storedAttempt(0, 20, 100, "b")
	other.SiteID = "site2"
	if err := fx.repo.Attempt().Create(ctx, nil, other); err != nil {
		t.Fatalf("Create: %v", err)
	}

	results, err := fx.sync.SyncAllSites(ctx)
	if err != nil {
		t.Fatalf("SyncAllSites: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected two sites, got %d", len(results))
	}
	for _, siteID := range []string{"site1", "site2"} {
		if len(results[siteID]) != 1 {
			t.Errorf("site %s: %d results, want 1", siteID, len(results[siteID]))
		}
	}
}

func TestSyncLessonReplaysViewLogs(t *testing.T) {
	ctx := context.Background()
	fx := newSyncFixture(t)

	if err := fx.repo.ViewLog().Append(ctx, nil, &models.ViewLog{
		SiteID:   "site1",
		LessonID: 1,
		PageID:   10,
		Time:     100,
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := fx.sync.SyncLesson(ctx, "site1", 1, SyncOptions{}); err != nil {
		t.Fatalf("SyncLesson: %v", err)
	}
	if fx.fake.viewLogs != 1 {
		t.Errorf("expected one replayed view log, got %d", fx.fake.viewLogs)
	}

	logs, err := fx.repo.ViewLog().ListForLesson(ctx, "site1", 1)
	if err != nil {
		t.Fatalf("ListForLesson: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("replayed view logs must be cleared, got %d", len(logs))
	}
}
