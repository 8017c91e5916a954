package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
)

// fakeSweepTarget — мок sweepTarget.
type fakeSweepTarget struct {
	mu       sync.Mutex
	ids      []int64
	listErr  error
	failIDs  map[int64]bool
	deleted  []int64
	cutoff   time.Time
	actorIDs []string
	block    chan struct{}
}

func (f *fakeSweepTarget) ClosedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = cutoff
	if a, ok := ActorFromContext(ctx); ok {
		f.actorIDs = append(f.actorIDs, a.Subject)
	}
	return f.ids, f.listErr
}

func (f *fakeSweepTarget) Delete(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return false, errors.New("lock timeout")
	}
	f.deleted = append(f.deleted, id)
	return true, nil
}

var systemActor = model.Actor{Subject: "system:sweeper", Role: "admin"}

func TestSweep_PartialFailures(t *testing.T) {
	target := &fakeSweepTarget{
		ids:     []int64{1, 2, 3, 4},
		failIDs: map[int64]bool{2: true},
	}
	s := newSweeper(target, 7*24*time.Hour, time.Hour, 0, systemActor, discardLogger())

	before := time.Now()
	res, err := s.Sweep(context.Background(), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep() ошибка: %v", err)
	}
	if res.Candidates != 4 || res.Deleted != 3 || res.Failed != 1 {
		t.Errorf("Sweep() = %+v, ожидалось 4/3/1", res)
	}

	wantCutoff := before.Add(-7 * 24 * time.Hour)
	if d := target.cutoff.Sub(wantCutoff); d < 0 || d > time.Second {
		t.Errorf("cutoff = %v, ожидалось около %v", target.cutoff, wantCutoff)
	}
	if len(target.actorIDs) != 1 || target.actorIDs[0] != "system:sweeper" {
		t.Errorf("актор в контексте = %v, ожидался system:sweeper", target.actorIDs)
	}
}

func TestSweep_ListError(t *testing.T) {
	target := &fakeSweepTarget{listErr: errors.New("db down")}
	s := newSweeper(target, time.Hour, time.Hour, 0, systemActor, discardLogger())

	if _, err := s.Sweep(context.Background(), time.Hour); err == nil {
		t.Fatal("ожидалась ошибка получения кандидатов")
	}
	if res := s.RunOnce(context.Background()); res == nil || res.Deleted != 0 {
		t.Errorf("RunOnce() = %+v, ожидался пустой результат", res)
	}
}

// TestRunOnce_SkipsOverlap: второй запуск во время первого пропускается.
func TestRunOnce_SkipsOverlap(t *testing.T) {
	target := &fakeSweepTarget{ids: []int64{1}, block: make(chan struct{})}
	s := newSweeper(target, time.Hour, time.Hour, 0, systemActor, discardLogger())

	first := make(chan *SweepResult)
	go func() { first <- s.RunOnce(context.Background()) }()

	waitFor(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.inProgress
	})

	if res := s.RunOnce(context.Background()); res != nil {
		t.Errorf("повторный RunOnce() = %+v, ожидался nil", res)
	}

	close(target.block)
	if res := <-first; res == nil || res.Deleted != 1 {
		t.Errorf("первый RunOnce() = %+v, ожидалось 1 удаление", res)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	target := &fakeSweepTarget{ids: []int64{5}}
	s := newSweeper(target, time.Hour, 10*time.Millisecond, time.Millisecond, systemActor, discardLogger())

	s.Start(context.Background())
	s.Start(context.Background()) // повторный вызов игнорируется

	waitFor(t, func() bool {
		target.mu.Lock()
		defer target.mu.Unlock()
		return len(target.deleted) >= 2
	})

	s.Stop()
	s.Stop()
}
