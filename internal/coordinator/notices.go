package coordinator

import (
	"sync"
	"time"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/domain"
)

// DefaultNoticeLimit is how many undrained notices a session keeps.
const DefaultNoticeLimit = 20

// NoticeBoard queues shopper-facing notices until the client drains them.
// When full, the oldest notice is dropped.
type NoticeBoard struct {
	mu      sync.Mutex
	notices []domain.Notice
	limit   int
}

// NewNoticeBoard returns a board holding at most limit notices.
func NewNoticeBoard(limit int) *NoticeBoard {
	if limit <= 0 {
		limit = DefaultNoticeLimit
	}
	return &NoticeBoard{limit: limit}
}

// Post queues n, stamping CreatedAt if unset.
func (b *NoticeBoard) Post(n domain.Notice) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.notices) == b.limit {
		b.notices = b.notices[1:]
	}
	b.notices = append(b.notices, n)
}

// Drain returns and removes every queued notice, oldest first.
func (b *NoticeBoard) Drain() []domain.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.notices
	b.notices = nil
	if out == nil {
		return []domain.Notice{}
	}
	return out
}

// Len returns the number of queued notices.
func (b *NoticeBoard) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.notices)
}
