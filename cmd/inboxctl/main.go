package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/matheus3301/inbox/internal/config"
	"github.com/matheus3301/inbox/internal/inbox"
	"github.com/matheus3301/inbox/internal/ingest"
	"github.com/matheus3301/inbox/internal/instance"
	"github.com/matheus3301/inbox/internal/lock"
	"github.com/matheus3301/inbox/internal/logging"
	"github.com/matheus3301/inbox/internal/store"
	"go.uber.org/zap"
)

func main() {
	os.Exit(realMain())
}

// realMain returns the exit code so deferred cleanup runs before the process exits.
func realMain() int {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	if err := config.LoadEnvFiles(); err != nil {
		return fail("load .env: %v", err)
	}
	cfg, err := config.LoadOrDefault(config.Path(instance.BaseDir()))
	if err != nil {
		return fail("load config: %v", err)
	}
	cfg.ApplyEnv()
	name := instance.Resolve(*instanceFlag, cfg)
	if err := instance.ValidateName(name); err != nil {
		return fail("%v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		return 1
	}

	// The store is opened directly, so a running inboxd for the same instance must be
	// stopped first; the lock enforces that.
	lk, err := lock.Acquire(instance.Dir(name), "inboxctl")
	if err != nil {
		return fail("%v", err)
	}
	defer func() { _ = lk.Release() }()

	logger, err := logging.New(instance.LogPath(name), name, "warn")
	if err != nil {
		return fail("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := store.Open(instance.DBPath(name))
	if err != nil {
		return fail("%v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		return fail("%v", err)
	}

	engine := ingest.NewEngine(db, nil, logger, ingest.WithBusinessLine(cfg.Business.DisplayPhoneNumber))
	svc := inbox.NewService(db, engine, cfg.Ingest.SampleDir, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, svc, args, *jsonFlag); err != nil {
		logger.Debug("command failed", zap.String("command", args[0]), zap.Error(err))
		return fail("%v", err)
	}
	return 0
}

func run(ctx context.Context, svc *inbox.Service, args []string, jsonOut bool) error {
	switch args[0] {
	case "ingest":
		dir := ""
		if len(args) >= 2 {
			dir = args[1]
		}
		return cmdIngest(ctx, svc, dir, jsonOut)
	case "ingest-file":
		if len(args) < 2 {
			return fmt.Errorf("usage: inboxctl ingest-file <file>")
		}
		return cmdIngestFile(ctx, svc, args[1], jsonOut)
	case "conversations":
		return cmdConversations(ctx, svc, jsonOut)
	case "messages":
		if len(args) < 2 {
			return fmt.Errorf("usage: inboxctl messages <wa_id> [page] [limit]")
		}
		page, limit := 1, 50
		var err error
		if len(args) >= 3 {
			if page, err = strconv.Atoi(args[2]); err != nil {
				return fmt.Errorf("page: %w", err)
			}
		}
		if len(args) >= 4 {
			if limit, err = strconv.Atoi(args[3]); err != nil {
				return fmt.Errorf("limit: %w", err)
			}
		}
		return cmdMessages(ctx, svc, args[1], page, limit, jsonOut)
	case "search":
		if len(args) < 2 {
			return fmt.Errorf("usage: inboxctl search <query> [wa_id]")
		}
		conv := ""
		if len(args) >= 3 {
			conv = args[2]
		}
		return cmdSearch(ctx, svc, args[1], conv, jsonOut)
	case "stats":
		return cmdStats(ctx, svc, jsonOut)
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: inboxctl [--instance <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  ingest [dir]                       Ingest every *.json payload in dir (default: configured sample dir)")
	fmt.Fprintln(os.Stderr, "  ingest-file <file>                 Ingest a single webhook payload")
	fmt.Fprintln(os.Stderr, "  conversations                      List conversations")
	fmt.Fprintln(os.Stderr, "  messages <wa_id> [page] [limit]    Show one page of a conversation")
	fmt.Fprintln(os.Stderr, "  search <query> [wa_id]             Search message text")
	fmt.Fprintln(os.Stderr, "  stats                              Show store counters")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "inboxd must not be running for the same instance.")
}

func cmdIngest(ctx context.Context, svc *inbox.Service, dir string, jsonOut bool) error {
	res, err := svc.IngestDirectory(ctx, dir)
	if err != nil {
		return err
	}
	if jsonOut {
		outputJSON(res)
		return nil
	}
	fmt.Printf("Files:          %d (%d failed)\n", res.ProcessedFiles, res.FailedFiles)
	fmt.Printf("Created:        %d\n", res.Created)
	fmt.Printf("Status updates: %d\n", res.StatusUpdates)
	fmt.Printf("Skipped:        %d\n", res.Skipped)
	fmt.Printf("Failed records: %d\n", res.Failed)
	return nil
}

func cmdIngestFile(ctx context.Context, svc *inbox.Service, path string, jsonOut bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	res, err := svc.IngestPayload(ctx, raw)
	if err != nil {
		return err
	}
	if jsonOut {
		outputJSON(res)
		return nil
	}
	fmt.Printf("Created: %d, status updates: %d, skipped: %d, failed: %d\n",
		res.Created, res.StatusUpdates, res.Skipped, res.Failed)
	return nil
}

func cmdConversations(ctx context.Context, svc *inbox.Service, jsonOut bool) error {
	convs, err := svc.ListConversations(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		outputJSON(convs)
		return nil
	}
	if len(convs) == 0 {
		fmt.Println("No conversations.")
		return nil
	}
	for _, c := range convs {
		fmt.Printf("%-16s %-20s %3d msgs %3d unread  %s  %s\n",
			c.ConversationID, c.DisplayName, c.MessageCount, c.UnreadCount,
			formatMillis(c.LastMessageTimestamp), c.LastMessageBody)
	}
	return nil
}

func cmdMessages(ctx context.Context, svc *inbox.Service, conv string, page, limit int, jsonOut bool) error {
	msgs, err := svc.ListMessages(ctx, conv, page, limit)
	if err != nil {
		return err
	}
	if jsonOut {
		outputJSON(msgs)
		return nil
	}
	for _, m := range msgs {
		arrow := "<"
		if m.Direction == store.DirectionOutgoing {
			arrow = ">"
		}
		fmt.Printf("%s %s %-12s [%s] %s\n", formatMillis(m.Timestamp), arrow, m.AuthorName, m.Status, m.Body)
	}
	return nil
}

func cmdSearch(ctx context.Context, svc *inbox.Service, query, conv string, jsonOut bool) error {
	res, err := svc.SearchMessages(ctx, query, conv, 50)
	if err != nil {
		return err
	}
	if jsonOut {
		outputJSON(res)
		return nil
	}
	if len(res) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, r := range res {
		fmt.Printf("%s %-16s %-12s %s\n", formatMillis(r.Message.Timestamp), r.Message.ConversationID, r.Message.AuthorName, r.Snippet)
	}
	return nil
}

func cmdStats(ctx context.Context, svc *inbox.Service, jsonOut bool) error {
	st, err := svc.Stats(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		outputJSON(st)
		return nil
	}
	fmt.Printf("Messages: %d\n", st.TotalMessages)
	fmt.Printf("Contacts: %d\n", st.TotalContacts)
	for _, c := range st.Conversations {
		fmt.Printf("  %-16s %d\n", c.ConversationID, c.Count)
	}
	return nil
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func fail(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	return 1
}
