package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ajoshi-dev/huddle/internal/archive"
	"github.com/ajoshi-dev/huddle/internal/bus"
	"github.com/ajoshi-dev/huddle/internal/chat"
	"github.com/ajoshi-dev/huddle/internal/session"
)

// console is the line-based shell around a session: one goroutine renders
// bus events, the other turns stdin lines into session calls.
type console struct {
	ctrl  *session.Controller
	b     *bus.Bus
	db    *archive.DB // nil when archiving is disabled
	group string
	user  string
}

func newConsole(ctrl *session.Controller, b *bus.Bus, db *archive.DB, group, user string) *console {
	return &console{ctrl: ctrl, b: b, db: db, group: group, user: user}
}

func (c *console) printLoop() {
	events, unsubscribe := c.b.Subscribe("", 64)
	defer unsubscribe()

	for ev := range events {
		switch ev.Kind {
		case bus.KindMessageMerged:
			if m, ok := ev.Payload.(chat.Event); ok {
				c.printMessage(m)
			}
		case bus.KindMessageRemoved:
			if id, ok := ev.Payload.(*int64); ok && id != nil {
				fmt.Printf("-- message %d deleted --\n", *id)
			}
		case bus.KindSessionStatusChanged:
			if ch, ok := ev.Payload.(session.StatusChange); ok && ch.To == session.Active {
				c.printHeader()
			}
		case bus.KindSessionDegraded:
			fmt.Println("-- group details unavailable --")
		case bus.KindGroupExpired:
			fmt.Println("-- group has expired --")
		case bus.KindChannelFailed:
			fmt.Println("-- connection lost --")
		}
	}
}

func (c *console) printHeader() {
	meta, ok := c.ctrl.Metadata()
	if !ok {
		fmt.Printf("== %s ==\n", c.group)
	} else {
		fmt.Printf("== %s (%d members, expires in %.0f min) ==\n",
			meta.GroupName, len(meta.Members), c.ctrl.Remaining())
	}
	for _, m := range c.ctrl.Events() {
		c.printMessage(m)
	}
}

func (c *console) printMessage(m chat.Event) {
	switch m.Kind {
	case chat.KindJoin, chat.KindLeave:
		fmt.Printf("-- %s --\n", m.Content)
	case chat.KindChat:
		prefix := ""
		if m.ID != nil {
			prefix = fmt.Sprintf("[%d] ", *m.ID)
		}
		if m.ReplyTo != nil {
			fmt.Printf("%s%s (replying to %s: %s): %s\n",
				prefix, m.Sender, m.ReplyTo.Sender, truncate(m.ReplyTo.Content, 40), m.Content)
			return
		}
		fmt.Printf("%s%s: %s\n", prefix, m.Sender, m.Content)
	}
}

func (c *console) inputLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(strings.TrimSpace(line), "/") {
			if err := c.ctrl.SendChat(line); err != nil {
				fmt.Fprintf(os.Stderr, "send: %v\n", err)
			}
			continue
		}
		if c.command(strings.TrimSpace(line)) {
			return
		}
	}
}

// command dispatches a slash command. Reports whether the shell should exit.
func (c *console) command(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/q":
		return true
	case "/delete":
		if len(fields) != 2 {
			fmt.Fprintln(os.Stderr, "usage: /delete <id>")
			return false
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad id %q\n", fields[1])
			return false
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.ctrl.RequestDelete(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "delete failed, removed locally: %v\n", err)
		}
	case "/reply":
		if len(fields) != 2 {
			fmt.Fprintln(os.Stderr, "usage: /reply <id>")
			return false
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad id %q\n", fields[1])
			return false
		}
		target, ok := c.findByID(id)
		if !ok {
			fmt.Fprintf(os.Stderr, "no message with id %d\n", id)
			return false
		}
		c.ctrl.SetReplyTarget(target)
		fmt.Printf("replying to %s: %s\n", target.Sender, truncate(target.Content, 40))
	case "/noreply":
		c.ctrl.ClearReplyTarget()
	case "/history":
		if c.db == nil {
			fmt.Fprintln(os.Stderr, "archive is disabled (set archive = true in config)")
			return false
		}
		limit := 20
		if len(fields) == 2 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n <= 0 {
				fmt.Fprintf(os.Stderr, "bad count %q\n", fields[1])
				return false
			}
			limit = n
		}
		archived, err := c.db.Recent(c.group, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read archive: %v\n", err)
			return false
		}
		if len(archived) == 0 {
			fmt.Println("no archived messages")
			return false
		}
		fmt.Printf("-- last %d archived --\n", len(archived))
		for _, m := range archived {
			c.printMessage(m)
		}
	case "/who":
		meta, ok := c.ctrl.Metadata()
		if !ok {
			fmt.Println(meta.GroupName)
			return false
		}
		fmt.Printf("%s, created by %s\n", meta.GroupName, meta.CreatedBy)
		for _, m := range meta.Members {
			fmt.Printf("  %s\n", m)
		}
		fmt.Printf("expires in %.0f min\n", c.ctrl.Remaining())
	case "/status":
		fmt.Printf("session=%s channel=%s\n", c.ctrl.Status(), c.ctrl.ConnectionState())
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s (try /quit, /delete, /reply, /noreply, /history, /who, /status)\n", fields[0])
	}
	return false
}

func (c *console) findByID(id int64) (chat.Event, bool) {
	for _, m := range c.ctrl.Events() {
		if m.ID != nil && *m.ID == id {
			return m, true
		}
	}
	return chat.Event{}, false
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
