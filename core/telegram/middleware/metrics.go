package middleware

import tele "gopkg.in/telebot.v4"

const countersKey = "paperbot.counters"

type counters struct {
	messages int
	keyboard bool
}

// countingContext counts successful sends and edits made by a handler.
type countingContext struct {
	tele.Context
	n *counters
}

func (m countingContext) count(err error, opts []interface{}) error {
	if err != nil {
		return err
	}
	m.n.messages++
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			m.n.keyboard = m.n.keyboard || (v != nil && v.ReplyMarkup != nil)
		case *tele.ReplyMarkup:
			m.n.keyboard = m.n.keyboard || v != nil
		}
	}
	return nil
}

func (m countingContext) Send(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.Send(what, opts...), opts)
}

func (m countingContext) Reply(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.Reply(what, opts...), opts)
}

func (m countingContext) Edit(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.Edit(what, opts...), opts)
}

func (m countingContext) EditOrSend(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.EditOrSend(what, opts...), opts)
}

func (m countingContext) EditOrReply(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.EditOrReply(what, opts...), opts)
}

// MessageMetricsMiddleware counts the messages each update produces.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		n := &counters{}
		c.Set(countersKey, n)
		return next(countingContext{Context: c, n: n})
	}
}

// GetCounters reports how many messages the update produced and whether
// any of them carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	n, ok := c.Get(countersKey).(*counters)
	if !ok {
		return 0, false
	}
	return n.messages, n.keyboard
}
