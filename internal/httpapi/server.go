package httpapi

import (
	"mailsync/internal/ai"
	"mailsync/internal/columns"
	"mailsync/internal/movecoordinator"
	"mailsync/internal/provider"
	"mailsync/internal/search"
	"mailsync/internal/secretbox"
	"mailsync/internal/store"
	"mailsync/internal/sync"

	"github.com/gin-gonic/gin"
)

// Server wires every component the HTTP boundary calls into. One Server
// is built at startup in main; all wiring is plain constructor
// injection.
type Server struct {
	users       store.UserStore
	mailboxes   store.MailboxStore
	messages    store.MessageStore
	attachments store.AttachmentStore
	columnStore store.ColumnStore

	provider provider.MailProvider
	box      *secretbox.Box
	ai       ai.Adapter

	engine     *sync.Engine
	mover      *movecoordinator.Coordinator
	columnMgr  *columns.Manager
	fuzzy      *search.Service
	semantic   *search.SemanticService
	suggest    *search.SuggestionService

	googleRedirectURI string
}

// Deps bundles Server's collaborators so NewServer doesn't take a dozen
// positional arguments.
type Deps struct {
	Users       store.UserStore
	Mailboxes   store.MailboxStore
	Messages    store.MessageStore
	Attachments store.AttachmentStore
	Columns     store.ColumnStore

	Provider provider.MailProvider
	Box      *secretbox.Box
	AI       ai.Adapter

	Engine    *sync.Engine
	Mover     *movecoordinator.Coordinator
	ColumnMgr *columns.Manager
	Fuzzy     *search.Service
	Semantic  *search.SemanticService
	Suggest   *search.SuggestionService

	GoogleRedirectURI string
}

// NewServer builds a Server from its Deps.
func NewServer(d Deps) *Server {
	return &Server{
		users:             d.Users,
		mailboxes:         d.Mailboxes,
		messages:          d.Messages,
		attachments:       d.Attachments,
		columnStore:       d.Columns,
		provider:          d.Provider,
		box:               d.Box,
		ai:                d.AI,
		engine:            d.Engine,
		mover:             d.Mover,
		columnMgr:         d.ColumnMgr,
		fuzzy:             d.Fuzzy,
		semantic:          d.Semantic,
		suggest:           d.Suggest,
		googleRedirectURI: d.GoogleRedirectURI,
	}
}

// Router builds the gin.Engine with CORS and every route group
// registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(corsMiddleware())

	v1 := r.Group("/v1")
	v1.Use(PrincipalMiddleware())
	{
		s.registerMailboxRoutes(v1)
		s.registerEmailRoutes(v1)
		s.registerKanbanRoutes(v1)
		s.registerAttachmentRoutes(v1)
	}
	return r
}

// Start runs the HTTP server on addr (":8080" etc).
func (s *Server) Start(addr string) error {
	return s.Router().Run(addr)
}
