package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"wabot/internal/session"
	"wabot/internal/storage"
	"wabot/pkg/logx"
)

// Controller is the slice of the session manager the bot drives.
type Controller interface {
	Status() session.Status
	Toggle(on bool)
	Logout(ctx context.Context) error
	UpdateSettings(ctx context.Context, message string, isActive bool) (storage.Settings, error)
	GetCurrentSettings(ctx context.Context) (storage.Settings, error)
}

type Request struct {
	FromID  int64
	ChatID  int64
	Command string
	Args    string
	Reply   func(text string) error
}

type Command struct {
	Name        string
	Description string
	Handle      HandlerFunc
}

// Router maps owner commands onto the controller.
type Router struct {
	ctrl     Controller
	log      logx.Logger
	commands map[string]Command
	chain    HandlerFunc
}

func NewRouter(ctrl Controller, owners []int64, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{ctrl: ctrl, log: log, commands: map[string]Command{}}
	for _, c := range []Command{
		{Name: "status", Description: "Show the session state", Handle: r.status},
		{Name: "on", Description: "Start auto-sending (not persisted)", Handle: r.toggle(true)},
		{Name: "off", Description: "Stop auto-sending (not persisted)", Handle: r.toggle(false)},
		{Name: "message", Description: "Set the auto-send message", Handle: r.message},
		{Name: "logout", Description: "Log out and pair again", Handle: r.logout},
		{Name: "help", Description: "List commands", Handle: r.help},
	} {
		r.commands[c.Name] = c
	}
	r.chain = Chain(r.route,
		MWRequestLog(log),
		MWPanicRecover(log),
		MWOwnerOnly(owners),
		MWTimeout(30*time.Second),
	)
	return r
}

// Commands returns the command list, sorted by name.
func (r *Router) Commands() []Command {
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch handles one text message. Non-command text is ignored.
func (r *Router) Dispatch(ctx context.Context, fromID, chatID int64, text string, reply func(string) error) error {
	name, args, ok := parseCommand(text)
	if !ok {
		return nil
	}
	req := &Request{FromID: fromID, ChatID: chatID, Command: name, Args: args, Reply: reply}
	err := r.chain(ctx, req)
	if errors.Is(err, ErrForbidden) {
		return nil
	}
	if err != nil {
		return reply("Failed: " + err.Error())
	}
	return nil
}

func (r *Router) route(ctx context.Context, req *Request) error {
	cmd, ok := r.commands[req.Command]
	if !ok {
		return req.Reply("Unknown command. Try /help.")
	}
	return cmd.Handle(ctx, req)
}

// parseCommand splits "/cmd@bot args" into ("cmd", "args").
func parseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

func (r *Router) status(_ context.Context, req *Request) error {
	st := r.ctrl.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", st.State)
	if st.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", st.Phone)
	}
	if st.PairingCode != "" {
		b.WriteString("Pairing: waiting for link\n")
	}
	fmt.Fprintf(&b, "Auto-send: %s", onOff(st.Sending))
	return req.Reply(b.String())
}

func (r *Router) toggle(on bool) HandlerFunc {
	return func(_ context.Context, req *Request) error {
		r.ctrl.Toggle(on)
		return req.Reply("Auto-send " + onOff(on) + ".")
	}
}

func (r *Router) message(ctx context.Context, req *Request) error {
	if req.Args == "" {
		cur, err := r.ctrl.GetCurrentSettings(ctx)
		if err != nil {
			return err
		}
		return req.Reply("Message: " + cur.Message + "\nUsage: /message <text>")
	}
	// Keep whatever the live switch says; the update persists it.
	if _, err := r.ctrl.UpdateSettings(ctx, req.Args, r.ctrl.Status().Sending); err != nil {
		return err
	}
	return req.Reply("Message updated.")
}

func (r *Router) logout(ctx context.Context, req *Request) error {
	if err := r.ctrl.Logout(ctx); err != nil {
		return err
	}
	return req.Reply("Logged out. A new pairing code will follow.")
}

func (r *Router) help(_ context.Context, req *Request) error {
	var b strings.Builder
	for _, c := range r.Commands() {
		fmt.Fprintf(&b, "/%s - %s\n", c.Name, c.Description)
	}
	return req.Reply(strings.TrimRight(b.String(), "\n"))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
