package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/psichat/client-go/internal/api"
	"github.com/psichat/client-go/internal/chat"
	"github.com/psichat/client-go/internal/config"
	"github.com/psichat/client-go/internal/domain"
	"github.com/psichat/client-go/internal/identity"
	"github.com/psichat/client-go/internal/realtime"
	"github.com/psichat/client-go/internal/session"
	"github.com/psichat/client-go/pkg/log"
	"github.com/psichat/client-go/pkg/token"
)

func main() {
	email := flag.String("email", os.Getenv("PSICHAT_EMAIL"), "account email for login")
	password := flag.String("password", os.Getenv("PSICHAT_PASSWORD"), "account password for login")
	sessionID := flag.Int64("session", 0, "counseling session to join (0 = personal channel)")
	listSessions := flag.Bool("sessions", false, "list sessions in the shared table and exit")
	adopt := flag.String("use", "", "adopt the session of the given tab id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	log.Init(cfg.Log)
	logger := log.L()

	// Shared session table + cross-tab notifier
	table, notifier, err := openSessionBackend(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open session backend")
	}
	defer table.Close()
	defer notifier.Close()

	ids := identity.NewProvider()
	store := session.New(ids, table, notifier,
		session.WithForcedLogoutHandler(func(reason string) {
			fmt.Fprintf(os.Stderr, "\n*** %s, please log in again ***\n", reason)
			os.Exit(1)
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *listSessions {
		printSessions(ctx, store)
		return
	}

	if *adopt != "" {
		if err := store.SwitchActive(ctx, identity.TabID(*adopt)); err != nil {
			logger.Fatal().Err(err).Str(log.FieldTabID, *adopt).Msg("failed to adopt session")
		}
	} else if err := store.Restore(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to restore session")
	}

	apiClient := api.NewClient(cfg.API)

	rec := store.Current()
	if rec != nil {
		if info, err := token.Inspect(rec.Token); err == nil && info.Expired() {
			logger.Warn().Msg("stored token already expired, discarding session")
			store.Write(ctx, nil)
			rec = nil
		}
	}

	if rec == nil {
		if *email == "" || *password == "" {
			logger.Fatal().Msg("no stored session; pass -email and -password to log in")
		}
		auth, err := apiClient.Login(ctx, *email, *password)
		if err != nil {
			logger.Fatal().Err(err).Msg("login failed")
		}
		rec = &domain.SessionRecord{Token: auth.AccessToken, User: auth.User}
		if err := store.Write(ctx, rec); err != nil {
			logger.Fatal().Err(err).Msg("failed to persist session")
		}
		logger.Info().Str(log.FieldTabID, string(store.TabID())).Str("name", rec.User.Name).Msg("logged in")
	}

	store.StartLiveness(ctx, cfg.Session.LivenessInterval, func(ctx context.Context, tok string) error {
		_, err := apiClient.Me(ctx, tok)
		if errors.Is(err, api.ErrUnauthorized) {
			return session.ErrCredentialRejected
		}
		return err
	})
	defer store.Teardown()

	// Refresh the prompt when a sibling instance changes the table.
	events, cancelEvents := store.Events()
	defer cancelEvents()
	go func() {
		for ev := range events {
			if ev.Origin != store.TabID() {
				fmt.Fprintf(os.Stderr, "[session table changed: %s]\n", ev.Action)
			}
		}
	}()

	scope := realtime.Scope{UserID: rec.User.ID, SessionID: *sessionID}
	mgr := realtime.NewManager(realtime.NewDialer(cfg.Realtime.DialTimeout), cfg.Realtime)

	chatClient := chat.NewClient(mgr, rec.User, scope, cfg.Chat,
		chat.OnMessage(func(m domain.Message) {
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), m.Sender, m.Text)
		}),
		chat.OnAlert(func(a domain.AlertNotification) {
			fmt.Fprintf(os.Stderr, "*** alert (%s): %s ***\n", a.AlertType, a.Description)
		}),
	)

	// Seed the timeline with persisted history before going live.
	if *sessionID != 0 {
		history, err := apiClient.SessionMessages(ctx, rec.Token, *sessionID)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load history")
		}
		for _, m := range history {
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), m.Sender, m.Text)
		}
	}

	if err := chatClient.Start(rec.Token); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect")
	}
	defer chatClient.Close()

	fmt.Printf("Connected as %s (%s). Type a message and press enter; /quit exits, /logout ends the session.\n",
		rec.User.Name, scope)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-quit:
			fmt.Println("\nBye.")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "/quit":
				return
			case "/logout":
				if err := store.Write(ctx, nil); err != nil {
					logger.Error().Err(err).Msg("logout failed")
				}
				return
			case "/status":
				fmt.Printf("connection: %s, typing: %v\n", chatClient.Status(), chatClient.TypingUsers())
			default:
				chatClient.InputActivity()
				if err := chatClient.Send(line); err != nil {
					logger.Error().Err(err).Msg("send failed")
				}
			}
		}
	}
}

func openSessionBackend(cfg *config.Config) (session.Table, session.Notifier, error) {
	switch cfg.Session.Backend {
	case "redis":
		table, err := session.NewRedisTable(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		notifier, err := session.NewRedisNotifier(table.Client(), cfg.Redis.Channel)
		if err != nil {
			table.Close()
			return nil, nil, err
		}
		return table, notifier, nil
	default:
		table, err := session.NewFileTable(cfg.Session.FilePath)
		if err != nil {
			return nil, nil, err
		}
		notifier, err := session.NewFileNotifier(table.Path())
		if err != nil {
			return nil, nil, err
		}
		return table, notifier, nil
	}
}

func printSessions(ctx context.Context, store *session.Store) {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		logger := log.L()
		logger.Fatal().Err(err).Msg("failed to list sessions")
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return
	}
	for tab, rec := range sessions {
		fmt.Printf("%s\t%s <%s>\t%s\n", tab, rec.User.Name, rec.User.Email, rec.User.Role)
	}
}
