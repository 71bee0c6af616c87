package facade

import (
	"context"
	"strings"
)

// reporter turns played sentences into cumulative typing updates over the
// normalized request text.
type reporter struct {
	ctx     context.Context
	id      string
	text    string
	cursor  int
	out     chan<- Update
	settled bool
}

func newReporter(ctx context.Context, j job) *reporter {
	return &reporter{ctx: ctx, id: j.id, text: j.text, out: j.updates}
}

func (r *reporter) spoken() string { return r.text[:r.cursor] }

func (r *reporter) remaining() string { return strings.TrimSpace(r.text[r.cursor:]) }

// advance moves the cursor past sentence and emits the text so far. A
// sentence that cannot be located leaves the cursor where it is.
func (r *reporter) advance(sentence string) {
	idx := strings.Index(r.text[r.cursor:], sentence)
	if idx < 0 || sentence == "" {
		return
	}

	r.cursor += idx + len(sentence)
	r.send(Update{RequestID: r.id, Text: r.spoken()})
}

// finish emits the single final update and closes the channel.
func (r *reporter) finish(shown string, offline bool, err error) {
	if r.settled {
		return
	}
	r.settled = true

	u := Update{RequestID: r.id, Text: shown, Final: true, Offline: offline}
	if err != nil {
		u.Error = err.Error()
	}

	r.send(u)

	if r.out != nil {
		close(r.out)
	}
}

// send blocks until the consumer takes u, giving up once the facade closes.
func (r *reporter) send(u Update) {
	if r.out == nil {
		return
	}

	if u.Final {
		// After Close the final update is dropped if nobody is receiving.
		select {
		case r.out <- u:
		case <-r.ctx.Done():
			select {
			case r.out <- u:
			default:
			}
		}
		return
	}

	select {
	case r.out <- u:
	case <-r.ctx.Done():
	}
}
