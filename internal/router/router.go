package router

import (
	"database/sql"
	"net/http"
	"time"

	_ "healthsafe/docs"
	mem "healthsafe/internal/adapters/storage/memory"
	pg "healthsafe/internal/adapters/storage/postgres"
	"healthsafe/internal/domain/access"
	"healthsafe/internal/domain/actors"
	"healthsafe/internal/domain/audit"
	"healthsafe/internal/domain/grants"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/domain/records"
	"healthsafe/internal/domain/requests"
	"healthsafe/internal/middleware"
	"healthsafe/internal/platform/logger"
	"healthsafe/internal/ports/auth"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	Logger logger.Logger

	CORSAllowedOrigins []string
	// 0 = sin límite
	RateLimitPerMinute int
}

// App es el router ya armado más el outbox que consume el dispatcher.
type App struct {
	Handler http.Handler
	Outbox  notifications.Repository
}

type stores struct {
	actors   actors.Repository
	records  records.Repository
	grants   grants.Repository
	requests requests.Repository
	audit    audit.Repository
	outbox   notifications.Repository
}

func memoryStores() stores {
	db := mem.New()
	return stores{
		actors:   mem.NewActorsRepo(db),
		records:  mem.NewRecordsRepo(db),
		grants:   mem.NewGrantsRepo(db),
		requests: mem.NewRequestsRepo(db),
		audit:    mem.NewAuditRepo(db),
		outbox:   mem.NewOutboxRepo(db),
	}
}

func postgresStores(db *sql.DB) stores {
	return stores{
		actors:   pg.NewActorsRepo(db),
		records:  pg.NewRecordsRepo(db),
		grants:   pg.NewGrantsRepo(db),
		requests: pg.NewRequestsRepo(db),
		audit:    pg.NewAuditRepo(db),
		outbox:   pg.NewOutboxRepo(db),
	}
}

func NewRouter(opts Options) http.Handler {
	return New(opts).Handler
}

func New(opts Options) App {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	st := memoryStores()
	if opts.DB != nil {
		st = postgresStores(opts.DB)
	}

	// Services por módulo
	rec := audit.NewRecorder(st.audit, log)
	actorsSvc := actors.NewService(st.actors, rec)
	recordsSvc := records.NewService(st.records, actorsSvc, rec)
	grantsSvc := grants.NewService(st.grants, recordsSvc, actorsSvc, rec)
	requestsSvc := requests.NewService(st.requests, actorsSvc, grantsSvc, rec)
	gate := access.NewGate(recordsSvc, actorsSvc, grantsSvc, rec)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Debug-User-ID", "X-Debug-Role", "X-Debug-Facility-ID"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if opts.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute))
	}

	r.Use(middleware.AuthContext(opts.AuthVerifier))
	r.Use(middleware.ResolveClaims(actorsSvc))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	// Rutas por módulo
	actors.RegisterRoutes(r, actorsSvc)
	records.RegisterRoutes(r, recordsSvc)
	grants.RegisterRoutes(r, grantsSvc)
	requests.RegisterRoutes(r, requestsSvc)
	access.RegisterRoutes(r, gate, rec)

	return App{Handler: r, Outbox: st.outbox}
}
