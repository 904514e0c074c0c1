package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/matthewbaird/erpconsole/internal/auth"
	"github.com/matthewbaird/erpconsole/internal/backend"
	"github.com/matthewbaird/erpconsole/internal/doctype"
	"github.com/matthewbaird/erpconsole/internal/eventbus"
	"github.com/matthewbaird/erpconsole/internal/i18n"
	"github.com/matthewbaird/erpconsole/internal/listview"
)

const writeTimeout = 10 * time.Second

// liveState is the payload of a "state" message: the list model plus the
// server-rendered list body the browser swaps in.
type liveState struct {
	listModel
	HTML string `json:"html"`
}

// liveConn is one browser's live list channel. Every list operation runs in
// its own goroutine so a newer request can supersede one still in flight;
// the view drops the superseded results.
type liveConn struct {
	c    *Console
	conn *websocket.Conn
	tr   *i18n.Translator
	desc *doctype.Descriptor
	sess *auth.Session
	ctx  context.Context
	stop context.CancelFunc
	ops  sync.WaitGroup

	// wmu serializes writes and makes each state message reflect the view
	// as of the moment it is written.
	wmu sync.Mutex

	vmu  sync.Mutex
	view *listview.View
}

func (c *Console) live(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		c.log.WarnContext(r.Context(), "live: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	lc := &liveConn{
		c:    c,
		conn: conn,
		tr:   c.translator(r),
		desc: descriptorFrom(r.Context()),
		sess: auth.FromContext(r.Context()),
		ctx:  ctx,
		stop: stop,
	}
	defer lc.ops.Wait()

	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				c.log.DebugContext(ctx, "live: read failed", "err", err)
			}
			stop()
			return
		}
		lc.handle(msg)
	}
}

func (lc *liveConn) handle(msg ClientMessage) {
	switch msg.Type {
	case msgLoad:
		var data LoadData
		if !lc.decode(msg, &data) {
			return
		}
		lc.load(msg.ID, data)
	case msgPage:
		var data PageData
		if lc.decode(msg, &data) {
			lc.run(msg.ID, func(v *listview.View) error { return v.GoToPage(lc.ctx, data.Page) })
		}
	case msgSort:
		var data SortData
		if lc.decode(msg, &data) {
			lc.run(msg.ID, func(v *listview.View) error { return v.SetSortField(lc.ctx, data.Field) })
		}
	case msgToggleOrder:
		lc.run(msg.ID, func(v *listview.View) error { return v.ToggleSortOrder(lc.ctx) })
	case msgPerPage:
		var data PerPageData
		if lc.decode(msg, &data) {
			lc.run(msg.ID, func(v *listview.View) error { return v.SetPerPage(lc.ctx, data.PerPage) })
		}
	case msgToggleRow:
		var data ToggleRowData
		if !lc.decode(msg, &data) {
			return
		}
		v := lc.current(msg.ID)
		if v == nil {
			return
		}
		if err := v.ToggleRow(data.Index); err != nil {
			lc.fail(msg.ID, err)
			return
		}
		lc.pushState(msg.ID, v)
	case msgToggleAll:
		if v := lc.current(msg.ID); v != nil {
			v.ToggleAll()
			lc.pushState(msg.ID, v)
		}
	case msgPing:
		lc.send(ServerMessage{Type: msgPong, RequestID: msg.ID})
	default:
		lc.sendError(msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type), nil)
	}
}

func (lc *liveConn) decode(msg ClientMessage, dst any) bool {
	if len(msg.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(msg.Data, dst); err != nil {
		lc.sendError(msg.ID, "invalid_data", fmt.Sprintf("invalid %s data", msg.Type), nil)
		return false
	}
	return true
}

// load replaces the connection's view with a fresh one.
func (lc *liveConn) load(id string, data LoadData) {
	lc.sess.DropViews(lc.desc.Name + "/")

	var v *listview.View
	v, err := listview.New(lc.desc, lc.sess.Backend, listview.Options{
		Page:       data.Page,
		PerPage:    data.PerPage,
		MinPerPage: lc.c.minPerPage,
		SortField:  data.Sort,
		SortOrder:  data.Order,
		OnChange:   func(listview.State) { lc.pushState("", v) },
	})
	if err != nil {
		lc.sendError(id, "invalid_data", err.Error(), nil)
		return
	}
	lc.vmu.Lock()
	lc.view = v
	lc.vmu.Unlock()
	lc.run(id, func(v *listview.View) error { return v.Load(lc.ctx) })
}

func (lc *liveConn) current(id string) *listview.View {
	lc.vmu.Lock()
	v := lc.view
	lc.vmu.Unlock()
	if v == nil {
		lc.sendError(id, "not_loaded", "list not loaded", nil)
	}
	return v
}

func (lc *liveConn) run(id string, op func(*listview.View) error) {
	v := lc.current(id)
	if v == nil {
		return
	}
	lc.ops.Add(1)
	go func() {
		defer lc.ops.Done()
		if err := op(v); err != nil {
			lc.fail(id, err)
		}
	}()
}

func (lc *liveConn) fail(id string, err error) {
	switch {
	case errors.Is(err, listview.ErrUnknownColumn), errors.Is(err, listview.ErrUnknownRow):
		lc.sendError(id, "invalid_data", err.Error(), nil)
		return
	case lc.ctx.Err() != nil:
		return
	}

	be := backend.AsError(err)
	if backend.IsForbidden(be) {
		lc.c.sessions.Remove(lc.sess.ID)
		lc.c.bus.Publish(eventbus.NewEvent(eventbus.UserLoggedOut, lc.sess.UserID()))
		lc.send(ServerMessage{Type: msgLogout, RequestID: id, Data: map[string]string{"url": "/login"}})
		lc.conn.Close(websocket.StatusPolicyViolation, "session ended")
		lc.stop()
		return
	}
	code := "backend"
	if errors.Is(err, listview.ErrHalted) {
		code = "halted"
	}
	ev := newErrorView(lc.tr, be)
	lc.sendError(id, code, err.Error(), &ev)
}

func (lc *liveConn) pushState(id string, v *listview.View) {
	lc.vmu.Lock()
	stale := lc.view != v
	lc.vmu.Unlock()
	if stale {
		return
	}

	lc.wmu.Lock()
	defer lc.wmu.Unlock()
	m := buildListModel(lc.tr, lc.desc, v.Snapshot(), lc.c.minPerPage, lc.c.backendURL)
	var buf bytes.Buffer
	p := page{T: lc.tr, Lang: lc.tr.Lang(), Content: m}
	if err := lc.c.pages.byName["list"].ExecuteTemplate(&buf, "list-body", p); err != nil {
		lc.c.log.ErrorContext(lc.ctx, "live: render failed", "err", err)
	}
	lc.writeLocked(ServerMessage{Type: msgState, RequestID: id, Data: liveState{listModel: m, HTML: buf.String()}})
}

func (lc *liveConn) send(msg ServerMessage) {
	lc.wmu.Lock()
	defer lc.wmu.Unlock()
	lc.writeLocked(msg)
}

func (lc *liveConn) writeLocked(msg ServerMessage) {
	ctx, cancel := context.WithTimeout(lc.ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, lc.conn, msg); err != nil && lc.ctx.Err() == nil {
		lc.c.log.WarnContext(lc.ctx, "live: write failed", "err", err)
	}
}

func (lc *liveConn) sendError(id, code, message string, view *errorView) {
	lc.send(ServerMessage{
		Type:      msgError,
		RequestID: id,
		Data:      ErrorData{Code: code, Message: message, View: view},
	})
}
