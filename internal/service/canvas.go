package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"retro-paint/internal/domain"
	"retro-paint/internal/render"
	"retro-paint/internal/repository"
)

const loadTimeout = 5 * time.Second

// CanvasConfig 控制新画布尺寸、历史上限和缓存时长。
type CanvasConfig struct {
	Width        int
	Height       int
	HistoryLimit int
	CacheTTL     time.Duration
}

func (c CanvasConfig) withDefaults() CanvasConfig {
	if c.Width <= 0 {
		c.Width = 640
	}
	if c.Height <= 0 {
		c.Height = 480
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 20
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
	return c
}

// CanvasStore 保存每个房间的权威画布。
//
// 每个房间一个 actor goroutine，持有光栅和快照；所有请求按 FIFO 进入其邮箱，
// 因此 GetSnapshot 总是排在之前提交的所有渲染之后。
type CanvasStore struct {
	renderer  render.Renderer
	snapshots repository.SnapshotRepository
	state     repository.StateRepository // 可为 nil
	cfg       CanvasConfig
	now       func() time.Time

	mu     sync.Mutex
	actors map[string]*canvasActor
	closed bool
}

// NewCanvasStore 创建画布存储。state 为 nil 时不使用 Redis 缓存。
func NewCanvasStore(renderer render.Renderer, snapshots repository.SnapshotRepository, state repository.StateRepository, cfg CanvasConfig) *CanvasStore {
	if renderer == nil {
		panic("Renderer cannot be nil for CanvasStore")
	}
	if snapshots == nil {
		panic("SnapshotRepository cannot be nil for CanvasStore")
	}
	return &CanvasStore{
		renderer:  renderer,
		snapshots: snapshots,
		state:     state,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		actors:    make(map[string]*canvasActor),
	}
}

// roomCanvas 是 actor 私有的状态，只在 actor goroutine 内访问。
type roomCanvas struct {
	roomID string
	loaded bool
	img    *image.RGBA
	snap   *domain.CanvasSnapshot
	dirty  bool
}

type canvasActor struct {
	mu      sync.Mutex
	queue   []func(*roomCanvas)
	stopped bool
	wake    chan struct{}
	done    chan struct{}
	canvas  roomCanvas
}

func newCanvasActor(roomID string) *canvasActor {
	a := &canvasActor{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		canvas: roomCanvas{roomID: roomID},
	}
	go a.run()
	return a
}

// enqueue 追加到无界邮箱。actor 已停止时返回 false。
func (a *canvasActor) enqueue(fn func(*roomCanvas)) bool {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return false
	}
	a.queue = append(a.queue, fn)
	a.mu.Unlock()
	select {
	case a.wake <- struct{}{}:
	default:
	}
	return true
}

func (a *canvasActor) run() {
	defer close(a.done)
	for {
		a.mu.Lock()
		if len(a.queue) == 0 {
			stopped := a.stopped
			a.mu.Unlock()
			if stopped {
				return
			}
			<-a.wake
			continue
		}
		batch := a.queue
		a.queue = nil
		a.mu.Unlock()
		for _, fn := range batch {
			fn(&a.canvas)
		}
	}
}

// stop 让 actor 处理完已排队的请求后退出
func (a *canvasActor) stop() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (s *CanvasStore) actor(roomID string) (*canvasActor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	a, ok := s.actors[roomID]
	if !ok {
		a = newCanvasActor(roomID)
		s.actors[roomID] = a
	}
	return a, nil
}

// do 在房间 actor 上同步执行 fn。
func (s *CanvasStore) do(ctx context.Context, roomID string, fn func(*roomCanvas) error) error {
	a, err := s.actor(roomID)
	if err != nil {
		return err
	}
	result := make(chan error, 1)
	if !a.enqueue(func(rc *roomCanvas) {
		if err := s.ensureLoaded(rc); err != nil {
			result <- err
			return
		}
		result <- fn(rc)
	}) {
		return ErrStoreClosed
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetSnapshot 返回房间当前快照的副本，排在所有已提交的操作之后。
func (s *CanvasStore) GetSnapshot(ctx context.Context, roomID string) (*domain.CanvasSnapshot, error) {
	var out *domain.CanvasSnapshot
	err := s.do(ctx, roomID, func(rc *roomCanvas) error {
		out = rc.snap.Clone()
		return nil
	})
	return out, err
}

// ApplyOperation 渲染一个操作并等待结果。
func (s *CanvasStore) ApplyOperation(ctx context.Context, roomID string, op domain.DrawingOperation) (*domain.CanvasSnapshot, error) {
	if err := s.validate(op); err != nil {
		return nil, err
	}
	var out *domain.CanvasSnapshot
	err := s.do(ctx, roomID, func(rc *roomCanvas) error {
		if err := s.apply(rc, op); err != nil {
			return err
		}
		out = rc.snap.Clone()
		return nil
	})
	return out, err
}

// Submit 异步提交操作，不等待渲染完成。调用方的提交顺序即渲染顺序。
func (s *CanvasStore) Submit(roomID string, op domain.DrawingOperation) error {
	if err := s.validate(op); err != nil {
		return err
	}
	a, err := s.actor(roomID)
	if err != nil {
		return err
	}
	if !a.enqueue(func(rc *roomCanvas) {
		if err := s.ensureLoaded(rc); err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Error("CanvasStore: dropping operation, canvas not loaded")
			return
		}
		if err := s.apply(rc, op); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"room_id":      roomID,
				"user_id":      op.UserID,
				"drawing_type": op.Kind,
			}).Warn("CanvasStore: failed to render operation")
		}
	}) {
		return ErrStoreClosed
	}
	return nil
}

// validate 在入队前拒绝渲染器必然丢弃的操作，这样被扇出的操作都会落到画布上。
// 粘贴的图片只检查图像头。
func (s *CanvasStore) validate(op domain.DrawingOperation) error {
	if err := op.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	if op.Kind == domain.KindPaste || op.Kind == domain.KindAIGenerate {
		if err := render.CheckDataURL(op.Payload.ImageData, image.Pt(s.cfg.Width, s.cfg.Height)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
		}
	}
	return nil
}

// ReplaceSnapshot 整体替换房间画布 (光栅、历史与索引)。
// 光栅和每一步历史都必须能解码，且不大于配置的画布尺寸。
func (s *CanvasStore) ReplaceSnapshot(ctx context.Context, roomID string, incoming domain.CanvasSnapshot) (*domain.CanvasSnapshot, error) {
	if err := incoming.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	history, index := capHistory(incoming.History, incoming.HistoryIndex, s.cfg.HistoryLimit)
	imageData := incoming.ImageData
	if imageData == "" {
		imageData = history[index]
	}
	limit := image.Pt(s.cfg.Width, s.cfg.Height)
	img, err := render.DecodeDataURLWithin(imageData, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	// 每一步历史都必须可解码，否则之后的 Undo/Redo 才会暴露问题
	for i, entry := range history {
		if entry == imageData {
			continue
		}
		if _, err := render.DecodeDataURLWithin(entry, limit); err != nil {
			return nil, fmt.Errorf("%w: history entry %d: %v", ErrInvalidSnapshot, i, err)
		}
	}

	var out *domain.CanvasSnapshot
	err = s.do(ctx, roomID, func(rc *roomCanvas) error {
		b := img.Bounds()
		rc.img = img
		rc.snap = &domain.CanvasSnapshot{
			RoomID:       roomID,
			Width:        b.Dx(),
			Height:       b.Dy(),
			ImageData:    imageData,
			History:      history,
			HistoryIndex: index,
			LastUpdated:  s.nextTimestamp(rc.snap.LastUpdated),
		}
		rc.dirty = true
		out = rc.snap.Clone()
		return nil
	})
	return out, err
}

// Undo 回退一步历史。已在最早一步时不做任何改变，changed 为 false。
func (s *CanvasStore) Undo(ctx context.Context, roomID string) (*domain.CanvasSnapshot, bool, error) {
	return s.step(ctx, roomID, -1)
}

// Redo 前进一步历史。
func (s *CanvasStore) Redo(ctx context.Context, roomID string) (*domain.CanvasSnapshot, bool, error) {
	return s.step(ctx, roomID, 1)
}

func (s *CanvasStore) step(ctx context.Context, roomID string, delta int) (*domain.CanvasSnapshot, bool, error) {
	var (
		out     *domain.CanvasSnapshot
		changed bool
	)
	err := s.do(ctx, roomID, func(rc *roomCanvas) error {
		next := rc.snap.HistoryIndex + delta
		if next >= 0 && next < len(rc.snap.History) {
			img, err := render.DecodeDataURL(rc.snap.History[next])
			if err != nil {
				return fmt.Errorf("decode history entry %d: %w", next, err)
			}
			rc.img = img
			rc.snap.HistoryIndex = next
			rc.snap.ImageData = rc.snap.History[next]
			rc.snap.LastUpdated = s.nextTimestamp(rc.snap.LastUpdated)
			rc.dirty = true
			changed = true
		}
		out = rc.snap.Clone()
		return nil
	})
	return out, changed, err
}

// Persist 把房间最新快照写入数据库和缓存。房间未加载或无变化时什么都不做。
func (s *CanvasStore) Persist(ctx context.Context, roomID string) error {
	s.mu.Lock()
	a, ok := s.actors[roomID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.persistActor(ctx, roomID, a)
}

func (s *CanvasStore) persistActor(ctx context.Context, roomID string, a *canvasActor) error {
	snapCh := make(chan *domain.CanvasSnapshot, 1)
	if !a.enqueue(func(rc *roomCanvas) {
		if !rc.loaded || !rc.dirty {
			snapCh <- nil
			return
		}
		rc.dirty = false
		snapCh <- rc.snap.Clone()
	}) {
		return nil
	}

	var snap *domain.CanvasSnapshot
	select {
	case snap = <-snapCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	if snap == nil {
		return nil
	}

	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "last_updated": snap.LastUpdated})
	if err := s.snapshots.SaveSnapshot(ctx, snap); err != nil {
		// 保存失败，重新标记为脏，等待下次 flush
		a.enqueue(func(rc *roomCanvas) { rc.dirty = true })
		logCtx.WithError(err).Error("CanvasStore: failed to save snapshot")
		return fmt.Errorf("save snapshot for room %s: %w", roomID, err)
	}
	if s.state != nil {
		if err := s.state.SetSnapshotCache(ctx, snap, s.cfg.CacheTTL); err != nil {
			logCtx.WithError(err).Warn("CanvasStore: failed to cache snapshot")
		}
	}
	logCtx.Debug("CanvasStore: snapshot persisted")
	return nil
}

// FlushDirty 持久化所有有未保存变化的房间，返回处理的房间数。
func (s *CanvasStore) FlushDirty(ctx context.Context) (int, error) {
	s.mu.Lock()
	actors := make(map[string]*canvasActor, len(s.actors))
	for id, a := range s.actors {
		actors[id] = a
	}
	s.mu.Unlock()

	var errs []error
	for id, a := range actors {
		if err := s.persistActor(ctx, id, a); err != nil {
			errs = append(errs, err)
		}
	}
	return len(actors), errors.Join(errs...)
}

// Purge 停止房间的 actor 并删除所有持久化副本。
func (s *CanvasStore) Purge(ctx context.Context, roomID string) error {
	s.mu.Lock()
	a, ok := s.actors[roomID]
	delete(s.actors, roomID)
	s.mu.Unlock()
	if ok {
		a.stop()
		select {
		case <-a.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := s.snapshots.DeleteSnapshot(ctx, roomID); err != nil {
		return fmt.Errorf("delete snapshot for room %s: %w", roomID, err)
	}
	if s.state != nil {
		if err := s.state.DeleteSnapshotCache(ctx, roomID); err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Warn("CanvasStore: failed to delete snapshot cache")
		}
	}
	logrus.WithField("room_id", roomID).Info("CanvasStore: room canvas purged")
	return nil
}

// Rooms 返回当前有 actor 的房间 ID。
func (s *CanvasStore) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.actors))
	for id := range s.actors {
		ids = append(ids, id)
	}
	return ids
}

// Close 持久化所有脏画布并停止全部 actor。
func (s *CanvasStore) Close(ctx context.Context) error {
	_, err := s.FlushDirty(ctx)

	s.mu.Lock()
	s.closed = true
	actors := s.actors
	s.actors = make(map[string]*canvasActor)
	s.mu.Unlock()

	for _, a := range actors {
		a.stop()
	}
	for _, a := range actors {
		select {
		case <-a.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// --- actor 内部 ---

// ensureLoaded 按 缓存 -> 数据库 -> 空白画布 的顺序初始化房间。
func (s *CanvasStore) ensureLoaded(rc *roomCanvas) error {
	if rc.loaded {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	logCtx := logrus.WithField("room_id", rc.roomID)

	snap, err := s.loadPersisted(ctx, rc.roomID)
	if err != nil {
		logCtx.WithError(err).Error("CanvasStore: failed to load snapshot")
		return ErrInternalServer
	}
	if snap != nil {
		img, decErr := render.DecodeDataURL(snap.ImageData)
		if decErr == nil && snap.Validate() == nil {
			snap.RoomID = rc.roomID
			rc.img, rc.snap, rc.loaded = img, snap, true
			logCtx.WithField("last_updated", snap.LastUpdated).Info("CanvasStore: snapshot restored")
			return nil
		}
		logCtx.Warn("CanvasStore: persisted snapshot unusable, starting blank")
	}

	img := render.Blank(s.cfg.Width, s.cfg.Height)
	data, err := render.EncodeDataURL(img)
	if err != nil {
		return err
	}
	rc.img = img
	rc.snap = &domain.CanvasSnapshot{
		RoomID:       rc.roomID,
		Width:        s.cfg.Width,
		Height:       s.cfg.Height,
		ImageData:    data,
		History:      []string{data},
		HistoryIndex: 0,
		LastUpdated:  s.now().UnixMilli(),
	}
	rc.loaded = true
	return nil
}

func (s *CanvasStore) loadPersisted(ctx context.Context, roomID string) (*domain.CanvasSnapshot, error) {
	if s.state != nil {
		snap, err := s.state.GetSnapshotCache(ctx, roomID)
		if err == nil && snap != nil {
			return snap, nil
		}
		if err != nil && !errors.Is(err, repository.ErrCacheMiss) {
			logrus.WithError(err).WithField("room_id", roomID).Warn("CanvasStore: snapshot cache unavailable")
		}
	}
	snap, err := s.snapshots.GetLatestSnapshot(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrSnapshotNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return snap, nil
}

// apply 渲染 op，截断 HistoryIndex 之后的分支并追加新状态。
func (s *CanvasStore) apply(rc *roomCanvas, op domain.DrawingOperation) error {
	img, err := s.renderer.Apply(rc.img, op)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	data, err := render.EncodeDataURL(img)
	if err != nil {
		return err
	}

	history := make([]string, 0, rc.snap.HistoryIndex+2)
	history = append(history, rc.snap.History[:rc.snap.HistoryIndex+1]...)
	history = append(history, data)
	if over := len(history) - s.cfg.HistoryLimit; over > 0 {
		history = history[over:]
	}

	rc.img = img
	rc.snap.ImageData = data
	rc.snap.History = history
	rc.snap.HistoryIndex = len(history) - 1
	rc.snap.LastUpdated = s.nextTimestamp(rc.snap.LastUpdated)
	rc.dirty = true
	return nil
}

// nextTimestamp 保证 LastUpdated 严格递增。
func (s *CanvasStore) nextTimestamp(prev int64) int64 {
	now := s.now().UnixMilli()
	if now <= prev {
		return prev + 1
	}
	return now
}

// capHistory 把历史裁剪到 limit 条，尽量保留最新的条目并保证 index 仍在窗口内。
func capHistory(history []string, index, limit int) ([]string, int) {
	out := append([]string(nil), history...)
	if len(out) <= limit {
		return out, index
	}
	start := len(out) - limit
	if index < start {
		start = index
	}
	return out[start : start+limit], index - start
}
