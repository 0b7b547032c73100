package transport

import (
	"context"
	"sync"
)

// Pipe returns the two ends of an in-process channel. Queues are unbounded,
// so Send never blocks, and closing either end closes both.
func Pipe() (Port, Port) {
	l := &link{done: make(chan struct{})}
	a := &pipePort{link: l, in: newQueue()}
	b := &pipePort{link: l, in: newQueue()}
	a.peer, b.peer = b, a
	return a, b
}

// link is the state shared by both ends.
type link struct {
	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	err  error
}

func (l *link) close(err error) {
	l.once.Do(func() {
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		close(l.done)
	})
}

func (l *link) cause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

type pipePort struct {
	link *link
	in   *queue
	peer *pipePort
}

func (p *pipePort) Send(ctx context.Context, msg []byte) error {
	select {
	case <-p.link.done:
		return p.link.cause()
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.peer.in.push(append([]byte(nil), msg...))
	return nil
}

func (p *pipePort) Receive(ctx context.Context) ([]byte, error) {
	for {
		if msg, ok := p.in.pop(); ok {
			return msg, nil
		}
		select {
		case <-p.in.notify:
		case <-p.link.done:
			if msg, ok := p.in.pop(); ok {
				return msg, nil
			}
			return nil, p.link.cause()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *pipePort) Close() error {
	p.link.close(ErrClosed)
	return nil
}

func (p *pipePort) Done() <-chan struct{} {
	return p.link.done
}

func (p *pipePort) Err() error {
	return p.link.cause()
}

// queue is an unbounded FIFO with a level-triggered wakeup.
type queue struct {
	mu     sync.Mutex
	items  [][]byte
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(msg []byte) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return msg, true
}
