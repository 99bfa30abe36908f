package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tash-comp/rain-app/internal/models"
	"github.com/tash-comp/rain-app/internal/validation"
)

// ErrLocationUnavailable is returned when permission is denied or no usable fix exists yet.
var ErrLocationUnavailable = errors.New("location unavailable")

// Source supplies the current position on demand.
type Source interface {
	RequestCurrent(ctx context.Context) (models.Coordinate, error)
}

// Permission is the device's location permission state as last reported.
type Permission string

const (
	PermissionNotDetermined Permission = "not_determined"
	PermissionGranted       Permission = "granted"
	PermissionDenied        Permission = "denied"
)

// Tracker is a Source fed by device pushes. It remembers the latest fix and the
// latest permission report.
type Tracker struct {
	mu         sync.RWMutex
	fix        models.Coordinate
	fixAt      time.Time
	hasFix     bool
	permission Permission
	maxAge     time.Duration // 0 = fixes never go stale
	now        func() time.Time
}

// NewTracker returns a Tracker with permission not yet determined. maxAge bounds how old
// a fix may be before RequestCurrent treats it as missing; 0 disables the check.
func NewTracker(maxAge time.Duration) *Tracker {
	return &Tracker{
		permission: PermissionNotDetermined,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Update records a new fix. A device only pushes fixes once permission is granted,
// so a push while not_determined implicitly grants it.
func (t *Tracker) Update(c models.Coordinate) error {
	if err := validation.ValidateCoordinate(c); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fix = c
	t.fixAt = t.now()
	t.hasFix = true
	if t.permission == PermissionNotDetermined {
		t.permission = PermissionGranted
	}
	return nil
}

// SetPermission records the device's permission state. Denial also forgets the last fix.
func (t *Tracker) SetPermission(p Permission) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.permission = p
	if p == PermissionDenied {
		t.hasFix = false
		t.fix = models.Coordinate{}
	}
}

// Permission returns the last reported permission state.
func (t *Tracker) Permission() Permission {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.permission
}

// RequestCurrent returns the latest fix or ErrLocationUnavailable.
func (t *Tracker) RequestCurrent(ctx context.Context) (models.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.permission == PermissionDenied {
		return models.Coordinate{}, fmt.Errorf("%w: permission denied", ErrLocationUnavailable)
	}
	if !t.hasFix {
		return models.Coordinate{}, fmt.Errorf("%w: no fix yet", ErrLocationUnavailable)
	}
	if t.maxAge > 0 && t.now().Sub(t.fixAt) > t.maxAge {
		return models.Coordinate{}, fmt.Errorf("%w: last fix older than %s", ErrLocationUnavailable, t.maxAge)
	}
	return t.fix, nil
}

// Static is a Source that always returns the same coordinate.
type Static struct {
	Coordinate models.Coordinate
}

// NewStatic validates c and returns a Static source for it.
func NewStatic(c models.Coordinate) (*Static, error) {
	if err := validation.ValidateCoordinate(c); err != nil {
		return nil, err
	}
	return &Static{Coordinate: c}, nil
}

// RequestCurrent implements Source.
func (s *Static) RequestCurrent(ctx context.Context) (models.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	return s.Coordinate, nil
}
