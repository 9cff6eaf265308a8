// Package adapter binds the bridge to the Telegram Bot API through telebot.
package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "asanagram/internal/runtime/supervisor"
	kit "asanagram/internal/transport"
	logx "asanagram/pkg/logx"
	"asanagram/pkg/tgui"
)

// Config configures the bot connection. Owners may run operator commands;
// with no owners configured the bot only sends.
type Config struct {
	Token          string
	PollTimeout    time.Duration
	CommandTimeout time.Duration
	Owners         []int64
	// Offline skips the getMe call. Tests only.
	Offline bool
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	cmdMu    sync.Mutex
	commands []kit.BotCommand
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b}, nil
}

// Supervisor returns the poll loop supervisor, nil when not polling.
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) isOwner(id int64) bool {
	for _, o := range a.cfg.Owners {
		if o == id {
			return true
		}
	}
	return false
}

// Handle registers an owner-only command. Commands from anyone else are
// ignored silently. Must be called before Start.
func (a *Adapter) Handle(cmd kit.BotCommand, h kit.CommandHandler) {
	name := strings.ToLower(strings.TrimPrefix(cmd.Command, "/"))
	a.cmdMu.Lock()
	a.commands = append(a.commands, kit.BotCommand{Command: name, Description: cmd.Description})
	a.cmdMu.Unlock()

	a.bot.Handle("/"+name, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || !a.isOwner(m.Sender.ID) {
			return nil
		}
		req := kit.Command{
			Name:     name,
			Args:     c.Args(),
			ChatID:   m.Chat.ID,
			ThreadID: m.ThreadID,
			FromID:   m.Sender.ID,
		}
		reply, err := a.runCommand(h, req)
		if err != nil {
			reply = "⚠️ " + tgui.Esc(err.Error()).String()
		}
		if strings.TrimSpace(reply) == "" {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CommandTimeout)
		defer cancel()
		_, serr := a.SendText(ctx, kit.ChatTarget{ChatID: req.ChatID, ThreadID: req.ThreadID}, reply,
			&kit.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: true})
		return serr
	})
}

func (a *Adapter) runCommand(h kit.CommandHandler, req kit.Command) (reply string, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("command panic recovered", logx.String("cmd", req.Name), logx.Any("panic", r))
			reply, err = "", errors.New("internal error")
		}
		fields := []logx.Field{logx.String("cmd", req.Name), logx.Int64("from_id", req.FromID), logx.Duration("dur", time.Since(start))}
		if err != nil {
			a.log.Warn("command failed", append(fields, logx.Err(err))...)
		} else {
			a.log.Debug("command ok", fields...)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CommandTimeout)
	defer cancel()
	return h(ctx, req)
}

// Start begins long polling when at least one owner and one command exist.
func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.cmdMu.Lock()
	cmds := append([]kit.BotCommand(nil), a.commands...)
	a.cmdMu.Unlock()
	if len(a.cfg.Owners) == 0 || len(cmds) == 0 {
		a.runMu.Unlock()
		a.log.Info("command polling disabled")
		return nil
	}
	a.running = true
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	sup := a.sup
	a.runMu.Unlock()

	if err := a.setMenu(cmds); err != nil {
		a.log.Warn("set bot commands failed", logx.Err(err))
	}

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) setMenu(cmds []kit.BotCommand) error {
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		d := c.Description
		if d == "" {
			d = c.Command
		}
		out = append(out, tele.Command{Text: c.Command, Description: d})
	}
	return a.bot.SetCommands(out)
}

// Stop never blocks longer than two seconds on the long poll.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()
	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && wctx.Err() != nil {
		a.log.Warn("telegram stop timed out", logx.Err(err))
	}
	return nil
}

// SendText sends text, split into several messages when it exceeds the
// Telegram limit. The returned ref points at the first message.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range splitText(text, textLimit, opt.ParseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}
