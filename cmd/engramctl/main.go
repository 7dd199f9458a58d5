// cmd/engramctl is the command line interface to the Engram memory
// engine. It drives the one-shot operations an operator or cron job
// needs: storing and retrieving memories, running the maintenance jobs
// (decay, conflict detection, consolidation suggestions, expiration,
// cleanup), and moving collections in and out with export and import.
//
// Every command operates on a single user's collection, selected with
// -user. The storage backend and LLM provider come from the config file
// and ENGRAM_ environment variables.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/engramdb/engram/internal/config"
	"github.com/engramdb/engram/internal/embedding"
	"github.com/engramdb/engram/internal/engine"
	"github.com/engramdb/engram/internal/llm"
	"github.com/engramdb/engram/internal/storage"
	"github.com/engramdb/engram/internal/storage/mongo"
	"github.com/engramdb/engram/internal/storage/postgres"
	"github.com/engramdb/engram/internal/storage/sqlite"
	"github.com/engramdb/engram/pkg/types"
)

const usage = `Usage: engramctl [-config path] <command> [flags]

Commands:
  create      store a new memory
  get         fetch a memory by id
  list        list memories with filters
  search      retrieve memories relevant to a query
  verify      confirm, reject or correct a memory
  extract     extract memories from a conversation JSON file
  link        relate two memories
  graph       print the relationship neighborhood of a memory
  decay       run relevance decay
  conflicts   detect contradicting memories
  suggest     suggest consolidation clusters
  consolidate merge memories into one
  expire      reclassify and purge expired memories
  cleanup     delete low-value memories beyond the keep count
  export      export a user's memories as JSON or CSV
  import      import memories from a JSON file
  privacy     mark memories private or shared
  delete      bulk delete memories
  summary     show collection statistics and capacity

Run 'engramctl <command> -h' for command flags.`

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("engramctl: ")
	log.SetFlags(log.LstdFlags)

	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	svc, err := buildService(store, cfg)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	if err := run(ctx, svc, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

// openStore creates the configured storage backend.
func openStore(ctx context.Context, cfg *config.Config) (storage.MemoryStore, error) {
	switch cfg.Storage.Engine {
	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory %q: %w", cfg.Storage.DataPath, err)
		}
		return sqlite.NewMemoryStore(filepath.Join(cfg.Storage.DataPath, "engram.db"))
	case "postgres":
		return postgres.NewMemoryStore(cfg.Storage.PostgresDSN, cfg.Embedding.Dimension)
	case "mongo":
		return mongo.NewMemoryStore(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDB)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}

// buildService wires the LLM provider, embedder and extractor into the
// engine. The "static" provider runs without any LLM and disables
// extraction.
func buildService(store storage.MemoryStore, cfg *config.Config) (*engine.Service, error) {
	var (
		generator llm.EmbeddingGenerator
		extractor engine.CandidateExtractor
	)

	switch cfg.LLM.Provider {
	case "ollama":
		client := llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL:           cfg.LLM.OllamaURL,
			Model:             cfg.LLM.OllamaModel,
			EmbedModel:        cfg.LLM.OllamaEmbeddingModel,
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		})
		generator = client
		extractor = llm.NewExtractor(client)
	case "openai":
		client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:            cfg.LLM.OpenAIAPIKey,
			BaseURL:           cfg.LLM.OpenAIBaseURL,
			Model:             cfg.LLM.OpenAIModel,
			EmbedModel:        cfg.LLM.OpenAIEmbeddingModel,
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		generator = client
		extractor = llm.NewExtractor(client)
	case "static":
		generator = embedding.NewStaticEmbedder(cfg.Embedding.Dimension)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}

	provider, err := embedding.NewProvider(generator, embedding.Options{
		Dimension:     cfg.Embedding.Dimension,
		CacheSize:     cfg.Embedding.CacheSize,
		BatchParallel: cfg.Embedding.BatchParallel,
	})
	if err != nil {
		return nil, err
	}

	return engine.NewService(store, provider, extractor, cfg.Tuning), nil
}

func run(ctx context.Context, svc *engine.Service, command string, args []string) error {
	switch command {
	case "create":
		return cmdCreate(ctx, svc, args)
	case "get":
		return cmdGet(ctx, svc, args)
	case "list":
		return cmdList(ctx, svc, args)
	case "search":
		return cmdSearch(ctx, svc, args)
	case "verify":
		return cmdVerify(ctx, svc, args)
	case "extract":
		return cmdExtract(ctx, svc, args)
	case "link":
		return cmdLink(ctx, svc, args)
	case "graph":
		return cmdGraph(ctx, svc, args)
	case "decay":
		return cmdDecay(ctx, svc, args)
	case "conflicts":
		return cmdConflicts(ctx, svc, args)
	case "suggest":
		return cmdSuggest(ctx, svc, args)
	case "consolidate":
		return cmdConsolidate(ctx, svc, args)
	case "expire":
		return cmdExpire(ctx, svc, args)
	case "cleanup":
		return cmdCleanup(ctx, svc, args)
	case "export":
		return cmdExport(ctx, svc, args)
	case "import":
		return cmdImport(ctx, svc, args)
	case "privacy":
		return cmdPrivacy(ctx, svc, args)
	case "delete":
		return cmdDelete(ctx, svc, args)
	case "summary":
		return cmdSummary(ctx, svc, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	user := fs.String("user", "", "user id (required)")
	return fs, user
}

func requireUser(user string) error {
	if user == "" {
		return fmt.Errorf("-user is required")
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cmdCreate(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("create")
	content := fs.String("content", "", "memory content (required)")
	memType := fs.String("type", "", "memory type (default: fact)")
	category := fs.String("category", "", "category")
	importance := fs.Float64("importance", 0, "importance score (default: 0.5)")
	confidence := fs.Float64("confidence", 0, "confidence score (default: 0.8)")
	tags := fs.String("tags", "", "comma-separated tags")
	contexts := fs.String("contexts", "", "comma-separated contexts")
	private := fs.Bool("private", false, "mark as private")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	mem, err := svc.Create(ctx, *user, engine.CreateRequest{
		Content:    *content,
		MemoryType: types.MemoryType(*memType),
		Category:   *category,
		Importance: *importance,
		Confidence: *confidence,
		Tags:       splitList(*tags),
		Contexts:   splitList(*contexts),
		IsPrivate:  *private,
	})
	if err != nil {
		return err
	}
	return printJSON(mem)
}

func cmdGet(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("get")
	id := fs.String("id", "", "memory id (required)")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	mem, err := svc.Get(ctx, *user, *id)
	if err != nil {
		return err
	}
	return printJSON(mem)
}

func cmdList(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("list")
	memType := fs.String("type", "", "filter by memory type")
	status := fs.String("status", "", "filter by status")
	category := fs.String("category", "", "filter by category")
	contextTag := fs.String("context", "", "filter by context")
	tags := fs.String("tags", "", "comma-separated tags (any match)")
	query := fs.String("query", "", "content substring filter")
	minImportance := fs.Float64("min-importance", 0, "importance floor")
	minConfidence := fs.Float64("min-confidence", 0, "confidence floor")
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 20, "page size")
	sortBy := fs.String("sort", "created_at", "sort field")
	order := fs.String("order", "desc", "sort order (asc or desc)")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	result, err := svc.List(ctx, *user, storage.ListOptions{
		MemoryType:    types.MemoryType(*memType),
		Status:        types.MemoryStatus(*status),
		Category:      *category,
		Context:       *contextTag,
		Tags:          splitList(*tags),
		Query:         *query,
		MinImportance: *minImportance,
		MinConfidence: *minConfidence,
		Page:          *page,
		Limit:         *limit,
		SortBy:        *sortBy,
		SortOrder:     *order,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func cmdSearch(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("search")
	query := fs.String("query", "", "query text (required)")
	limit := fs.Int("limit", 5, "max results")
	minImportance := fs.Float64("min-importance", 0.3, "importance floor")
	contexts := fs.String("contexts", "", "comma-separated active contexts (default: detected from query)")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	results, err := svc.Relevant(ctx, *user, *query, engine.RetrieveOptions{
		Limit:          *limit,
		MinImportance:  *minImportance,
		ActiveContexts: splitList(*contexts),
	})
	if err != nil {
		return err
	}
	return printJSON(results)
}

func cmdVerify(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("verify")
	id := fs.String("id", "", "memory id (required)")
	action := fs.String("action", "", "confirm, reject or correct (required)")
	feedback := fs.String("feedback", "", "free-form feedback")
	content := fs.String("content", "", "corrected content (for correct)")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	mem, err := svc.Verify(ctx, *user, *id, engine.VerifyRequest{
		Action:           *action,
		Feedback:         *feedback,
		CorrectedContent: *content,
	})
	if err != nil {
		return err
	}
	return printJSON(mem)
}

func cmdExtract(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("extract")
	file := fs.String("file", "", "JSON file with [{role, content}] messages (required)")
	session := fs.String("session", "", "source session id")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	var messages []types.ConversationMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("failed to parse %s: %w", *file, err)
	}

	result, err := svc.ExtractFromConversation(ctx, *user, *session, messages)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func cmdLink(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("link")
	source := fs.String("source", "", "source memory id (required)")
	target := fs.String("target", "", "target memory id (required)")
	relType := fs.String("type", types.RelRelatesTo, "relationship type")
	strength := fs.Float64("strength", 1.0, "edge strength")
	oneWay := fs.Bool("one-way", false, "skip the reverse edge on the target")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	return svc.Link(ctx, *user, *source, *target, *relType, *strength, !*oneWay)
}

func cmdGraph(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("graph")
	id := fs.String("id", "", "root memory id (required)")
	depth := fs.Int("depth", 2, "traversal depth")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	graph, err := svc.Graph(ctx, *user, *id, *depth)
	if err != nil {
		return err
	}
	return printJSON(graph)
}

func cmdDecay(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("decay")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	decayed, err := svc.ApplyDecay(ctx, *user)
	if err != nil {
		return err
	}
	fmt.Printf("decayed %d memories\n", decayed)
	return nil
}

func cmdConflicts(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("conflicts")
	id := fs.String("id", "", "check only this memory")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	conflicts, err := svc.DetectConflicts(ctx, *user, *id)
	if err != nil {
		return err
	}
	return printJSON(conflicts)
}

func cmdSuggest(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("suggest")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	suggestions, err := svc.SuggestConsolidations(ctx, *user)
	if err != nil {
		return err
	}
	return printJSON(suggestions)
}

func cmdConsolidate(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("consolidate")
	ids := fs.String("ids", "", "comma-separated memory ids (required, min 2)")
	content := fs.String("content", "", "override for the merged content")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	merged, err := svc.Consolidate(ctx, *user, splitList(*ids), *content)
	if err != nil {
		return err
	}
	return printJSON(merged)
}

func cmdExpire(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("expire")
	purge := fs.Bool("purge", false, "also delete memories past their expiry")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	reclassified, err := svc.ClassifyExpirations(ctx, *user)
	if err != nil {
		return err
	}
	fmt.Printf("reclassified %d memories\n", reclassified)

	if *purge {
		purged, err := svc.PurgeExpired(ctx, *user)
		if err != nil {
			return err
		}
		fmt.Printf("purged %d expired memories\n", purged)
	}
	return nil
}

func cmdCleanup(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("cleanup")
	keep := fs.Int("keep", 500, "number of top-ranked memories to keep unconditionally")
	minImportance := fs.Float64("min-importance", 0.3, "only delete memories below this importance")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	deleted, err := svc.Cleanup(ctx, *user, *keep, *minImportance)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d memories\n", deleted)
	return nil
}

func cmdExport(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("export")
	format := fs.String("format", "json", "json or csv")
	relationships := fs.Bool("relationships", true, "include relationships (json)")
	embeddings := fs.Bool("embeddings", false, "include embeddings (json)")
	statuses := fs.String("statuses", "", "comma-separated status filter")
	memTypes := fs.String("types", "", "comma-separated type filter")
	contexts := fs.String("contexts", "", "comma-separated context filter")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	opts := engine.ExportOptions{
		Format:               *format,
		IncludeRelationships: *relationships,
		IncludeEmbeddings:    *embeddings,
		Contexts:             splitList(*contexts),
	}
	for _, s := range splitList(*statuses) {
		opts.Statuses = append(opts.Statuses, types.MemoryStatus(s))
	}
	for _, t := range splitList(*memTypes) {
		opts.Types = append(opts.Types, types.MemoryType(t))
	}

	export, err := svc.Export(ctx, *user, opts)
	if err != nil {
		return err
	}
	if export.Format == engine.FormatCSV {
		fmt.Print(export.CSV)
		return nil
	}
	return printJSON(export)
}

func cmdImport(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("import")
	file := fs.String("file", "", "JSON file with memory entries (required)")
	strategy := fs.String("strategy", engine.MergeSkipDuplicates, "skip_duplicates, update or create_new")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	var entries []engine.ImportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse %s: %w", *file, err)
	}

	stats, err := svc.Import(ctx, *user, entries, *strategy)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func cmdPrivacy(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("privacy")
	ids := fs.String("ids", "", "comma-separated memory ids (required)")
	private := fs.Bool("private", true, "mark as private")
	sharedWith := fs.String("shared-with", "", "comma-separated user ids to share with")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	updated, err := svc.SetPrivacy(ctx, *user, splitList(*ids), *private, splitList(*sharedWith))
	if err != nil {
		return err
	}
	fmt.Printf("updated %d memories\n", updated)
	return nil
}

func cmdDelete(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("delete")
	ids := fs.String("ids", "", "comma-separated memory ids")
	status := fs.String("status", "", "filter by status")
	memType := fs.String("type", "", "filter by memory type")
	category := fs.String("category", "", "filter by category")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	deleted, err := svc.BulkDelete(ctx, *user, splitList(*ids), engine.BulkDeleteFilter{
		Status:     types.MemoryStatus(*status),
		MemoryType: types.MemoryType(*memType),
		Category:   *category,
	})
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d memories\n", deleted)
	return nil
}

func cmdSummary(ctx context.Context, svc *engine.Service, args []string) error {
	fs, user := newFlagSet("summary")
	fs.Parse(args)
	if err := requireUser(*user); err != nil {
		return err
	}

	summary, err := svc.Summary(ctx, *user)
	if err != nil {
		return err
	}
	return printJSON(summary)
}
