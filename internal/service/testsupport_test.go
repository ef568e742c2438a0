package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"debate_web/internal/ai"
	"debate_web/internal/models"
	"debate_web/internal/repository"
)

// 記憶體版的資料存取替身
// Repositories 沒有底層資料庫時 WithTx 會直接執行，
// 這裡的交易因此不具回滾能力，測試只驗證行為順序與結果

type fakeRoomRepo struct {
	mu    sync.Mutex
	rooms map[uint]models.Room
	next  uint
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[uint]models.Room), next: 1}
}

func (r *fakeRoomRepo) Create(room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room.ID == 0 {
		room.ID = r.next
		r.next++
	}
	r.rooms[room.ID] = *room
	return nil
}

func (r *fakeRoomRepo) FindByID(id uint) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := room
	return &out, nil
}

func (r *fakeRoomRepo) Update(room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = *room
	return nil
}

func (r *fakeRoomRepo) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, id)
	return nil
}

func (r *fakeRoomRepo) FindAll() ([]models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out, nil
}

type fakeDebateRepo struct {
	mu      sync.Mutex
	debates map[uint]models.Debate
	next    uint
}

func newFakeDebateRepo() *fakeDebateRepo {
	return &fakeDebateRepo{debates: make(map[uint]models.Debate), next: 1}
}

func (r *fakeDebateRepo) Create(debate *models.Debate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if debate.ID == 0 {
		debate.ID = r.next
		r.next++
	}
	r.debates[debate.ID] = *debate
	return nil
}

func (r *fakeDebateRepo) FindByID(id uint) (*models.Debate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	debate, ok := r.debates[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := debate
	return &out, nil
}

func (r *fakeDebateRepo) FindByIDForUpdate(id uint) (*models.Debate, error) {
	return r.FindByID(id)
}

func (r *fakeDebateRepo) FindByRoomID(roomID uint) (*models.Debate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, debate := range r.debates {
		if debate.RoomID == roomID {
			out := debate
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeDebateRepo) Update(debate *models.Debate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debates[debate.ID] = *debate
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []models.DebateMessage
	next     uint
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{next: 1}
}

func (r *fakeMessageRepo) Create(message *models.DebateMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	message.ID = r.next
	r.next++
	r.messages = append(r.messages, *message)
	return nil
}

func (r *fakeMessageRepo) FindByDebateID(debateID uint) ([]models.DebateMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DebateMessage
	for _, m := range r.messages {
		if m.DebateID == debateID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeEvaluationRepo struct {
	mu      sync.Mutex
	byID    map[uint]models.Evaluation
	upserts int
}

func newFakeEvaluationRepo() *fakeEvaluationRepo {
	return &fakeEvaluationRepo{byID: make(map[uint]models.Evaluation)}
}

func (r *fakeEvaluationRepo) Upsert(evaluation *models.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	r.byID[evaluation.DebateID] = *evaluation
	return nil
}

func (r *fakeEvaluationRepo) FindByDebateID(debateID uint) (*models.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evaluation, ok := r.byID[debateID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := evaluation
	return &out, nil
}

type fakeConnLogRepo struct {
	mu      sync.Mutex
	entries []models.ConnectionLog
	next    uint
}

func newFakeConnLogRepo() *fakeConnLogRepo {
	return &fakeConnLogRepo{next: 1}
}

func (r *fakeConnLogRepo) Append(entry *models.ConnectionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = r.next
	r.next++
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeConnLogRepo) Latest(userID uint, ctxType models.ConnectionContext, ctxID uint) (*models.ConnectionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.UserID == userID && e.ContextType == ctxType && e.ContextID == ctxID {
			return &e, nil
		}
	}
	return nil, nil
}

// scheduledTask 記錄一次排程呼叫
type scheduledTask struct {
	Kind    string
	Payload interface{}
	Delay   time.Duration
	RunAt   time.Time
}

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []scheduledTask
}

func (s *fakeScheduler) Schedule(ctx context.Context, kind string, payload interface{}, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, scheduledTask{Kind: kind, Payload: payload, Delay: delay})
	return nil
}

func (s *fakeScheduler) ScheduleAt(ctx context.Context, kind string, payload interface{}, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, scheduledTask{Kind: kind, Payload: payload, RunAt: runAt})
	return nil
}

func (s *fakeScheduler) byKind(kind string) []scheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scheduledTask
	for _, t := range s.tasks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *fakePublisher) Publish(events ...Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *fakePublisher) byName(name string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeTerminationStore struct {
	mu      sync.Mutex
	entries map[uint]terminationEntry
}

func newFakeTerminationStore() *fakeTerminationStore {
	return &fakeTerminationStore{entries: make(map[uint]terminationEntry)}
}

func (s *fakeTerminationStore) PutIfAbsent(ctx context.Context, debateID uint, entry terminationEntry, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[debateID]; ok {
		return false, nil
	}
	s.entries[debateID] = entry
	return true, nil
}

func (s *fakeTerminationStore) Get(ctx context.Context, debateID uint) (*terminationEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[debateID]
	if !ok {
		return nil, nil
	}
	out := entry
	return &out, nil
}

func (s *fakeTerminationStore) Delete(ctx context.Context, debateID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, debateID)
	return nil
}

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (g *fakeGenerator) Generate(ctx context.Context, req ai.GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

// generatorFunc 讓測試用函數直接充當 Generator
type generatorFunc func(ctx context.Context, req ai.GenerateRequest) (string, error)

func (f generatorFunc) Generate(ctx context.Context, req ai.GenerateRequest) (string, error) {
	return f(ctx, req)
}

type fakeJudge struct {
	mu      sync.Mutex
	verdict *ai.Verdict
	err     error
	calls   int
}

func (j *fakeJudge) Evaluate(ctx context.Context, topic string, transcript []ai.TranscriptEntry) (*ai.Verdict, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls++
	if j.err != nil {
		return nil, j.err
	}
	return j.verdict, nil
}

// testEnv 組裝一套以替身為後端的服務
type testEnv struct {
	repos     *repository.Repositories
	rooms     *fakeRoomRepo
	debateDB  *fakeDebateRepo
	messages  *fakeMessageRepo
	evals     *fakeEvaluationRepo
	connLogs  *fakeConnLogRepo
	scheduler *fakeScheduler
	publisher *fakePublisher
	format    *FormatService
	debates   *DebateService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		rooms:     newFakeRoomRepo(),
		debateDB:  newFakeDebateRepo(),
		messages:  newFakeMessageRepo(),
		evals:     newFakeEvaluationRepo(),
		connLogs:  newFakeConnLogRepo(),
		scheduler: &fakeScheduler{},
		publisher: &fakePublisher{},
		format:    NewFormatService(),
	}
	env.repos = &repository.Repositories{
		Room:          env.rooms,
		Debate:        env.debateDB,
		Message:       env.messages,
		Evaluation:    env.evals,
		ConnectionLog: env.connLogs,
	}
	env.debates = NewDebateService(env.repos, env.format, env.scheduler, env.publisher, testAIUserID, zap.NewNop())
	return env
}

// seedQuickDebate 建立一個 quick 賽制、正在 debating 的房間與場次
func (env *testEnv) seedQuickDebate(affirmativeID, negativeID uint) (*models.Room, *models.Debate) {
	room := &models.Room{
		Name:          "科技是否讓生活更好",
		Status:        models.RoomStatusDebating,
		CreatorID:     affirmativeID,
		AffirmativeID: affirmativeID,
		NegativeID:    negativeID,
		FormatName:    "quick",
	}
	env.rooms.Create(room)

	expires := time.Now().Add(3 * time.Minute)
	debate := &models.Debate{
		RoomID:        room.ID,
		AffirmativeID: affirmativeID,
		NegativeID:    negativeID,
		CurrentTurn:   1,
		TurnExpiresAt: &expires,
	}
	env.debateDB.Create(debate)
	return room, debate
}
