package activity

import (
	"fmt"
	"strings"

	"github.com/upb/activity-pipeline/internal/schema"
	"github.com/upb/activity-pipeline/models"
)

// Classification is the rendered outcome of a routed action
type Classification struct {
	Message string
	// ReadTarget is the entity id of a read/read action; such actions go through the read cache.
	ReadTarget string
}

// IsRead reports whether the classification must be deduplicated
func (c Classification) IsRead() bool {
	return c.ReadTarget != ""
}

type routeKey struct {
	eventType  models.EventType
	eventScope models.EventScope
}

type renderFunc func(action *models.UserAction) (Classification, bool)

// Classifier maps (event_type, event_scope) pairs to audit messages.
// Pairs without a route are not audit relevant.
type Classifier struct {
	routes map[routeKey]renderFunc
}

// NewClassifier builds the routing table
func NewClassifier() *Classifier {
	c := &Classifier{routes: make(map[routeKey]renderFunc)}

	c.route(models.EventTypeAuthentication, models.EventScopeLogin, renderLogin)
	c.route(models.EventTypeAuthentication, models.EventScopeLogout, fixed("logout"))
	c.route(models.EventTypeAuthentication, models.EventScopeForgot, passthrough)

	c.route(models.EventTypeRead, models.EventScopeUnauthorized, renderUnauthorized)
	c.route(models.EventTypeRead, models.EventScopeRead, renderRead)

	c.route(models.EventTypeFile, models.EventScopeRead, renderFileAccess("reads"))
	c.route(models.EventTypeFile, models.EventScopeDownload, renderFileAccess("downloads"))
	c.route(models.EventTypeFile, models.EventScopeCreate, renderFileCreate)
	c.route(models.EventTypeFile, models.EventScopeDelete, renderFileDelete)
	c.route(models.EventTypeFile, models.EventScopeDisseminate, renderDisseminate)

	c.route(models.EventTypeCommand, models.EventScopeSearch, fixed("asks for `global search`"))
	c.route(models.EventTypeCommand, models.EventScopeExport, renderExport)
	c.route(models.EventTypeCommand, models.EventScopeImport, renderImport)
	c.route(models.EventTypeCommand, models.EventScopeEnrich, renderConnector("enrichment"))
	c.route(models.EventTypeCommand, models.EventScopeAnalyze, renderConnector("analysis"))

	c.route(models.EventTypeMutation, models.EventScopeCreate, passthrough)
	c.route(models.EventTypeMutation, models.EventScopeUpdate, passthrough)
	c.route(models.EventTypeMutation, models.EventScopeDelete, passthrough)
	c.route(models.EventTypeMutation, models.EventScopeUnauthorized, renderUnauthorized)

	return c
}

func (c *Classifier) route(t models.EventType, s models.EventScope, fn renderFunc) {
	c.routes[routeKey{eventType: t, eventScope: s}] = fn
}

// Routed reports whether the pair has a route, regardless of the action content
func (c *Classifier) Routed(t models.EventType, s models.EventScope) bool {
	_, ok := c.routes[routeKey{eventType: t, eventScope: s}]
	return ok
}

// Classify renders the action. ok is false when the action is not audit relevant.
func (c *Classifier) Classify(action *models.UserAction) (Classification, bool) {
	fn, ok := c.routes[routeKey{eventType: action.EventType, eventScope: action.EventScope}]
	if !ok {
		return Classification{}, false
	}
	return fn(action)
}

// Render returns only the message of Classify
func (c *Classifier) Render(action *models.UserAction) (string, bool) {
	cl, ok := c.Classify(action)
	return cl.Message, ok
}

func message(format string, args ...any) (Classification, bool) {
	return Classification{Message: fmt.Sprintf(format, args...)}, true
}

func fixed(msg string) renderFunc {
	return func(*models.UserAction) (Classification, bool) {
		return Classification{Message: msg}, true
	}
}

// passthrough keeps the caller rendered message as given; a blank one falls back to "<type> <scope>"
func passthrough(action *models.UserAction) (Classification, bool) {
	if strings.TrimSpace(action.Message) == "" {
		return Classification{Message: string(action.EventType) + " " + string(action.EventScope)}, true
	}
	return Classification{Message: action.Message}, true
}

func renderLogin(action *models.UserAction) (Classification, bool) {
	data := models.DecodeContext[models.LoginContext](action.ContextData)
	if action.IsError() {
		return message("detects `login failure` for `%s`", data.Username)
	}
	return message("login from provider `%s`", data.Provider)
}

func renderUnauthorized(action *models.UserAction) (Classification, bool) {
	return message("tries an `unauthorized %s`", action.EventType)
}

func renderRead(action *models.UserAction) (Classification, bool) {
	data := models.DecodeContext[models.ReadContext](action.ContextData)
	if !schema.IsReadListened(data.EntityType) {
		return Classification{}, false
	}
	cl, _ := message("reads `%s` (%s)", data.EntityName, data.EntityType)
	cl.ReadTarget = data.ID
	if cl.ReadTarget == "" {
		// keep the entry addressable; every id-less read of the user shares it
		cl.ReadTarget = "-"
	}
	return cl, true
}

func failurePrefix(action *models.UserAction) string {
	if action.IsError() {
		return "failure "
	}
	return ""
}

func renderFileAccess(verb string) renderFunc {
	return func(action *models.UserAction) (Classification, bool) {
		data := models.DecodeContext[models.FileContext](action.ContextData)
		return message("%s%s from `%s` the file `%s`", failurePrefix(action), verb, data.EntityName, data.FileName)
	}
}

func renderFileCreate(action *models.UserAction) (Classification, bool) {
	data := models.DecodeContext[models.FileContext](action.ContextData)
	switch {
	case data.IsWorkbench():
		return message("creates Analyst Workbench `%s` for `%s` (%s)", data.FileName, data.EntityName, data.EntityType)
	case data.Input.IsUpsert:
		return message("adds a new version of `%s` in `files` for `%s` (%s)", data.FileName, data.EntityName, data.EntityType)
	default:
		return message("adds `%s` in `files` for `%s` (%s)", data.FileName, data.EntityName, data.EntityType)
	}
}

func renderFileDelete(action *models.UserAction) (Classification, bool) {
	data := models.DecodeContext[models.FileContext](action.ContextData)
	if data.IsWorkbench() {
		return message("removes Analyst Workbench `%s` for `%s` (%s)", data.FileName, data.EntityName, data.EntityType)
	}
	return message("removes `%s` in `files` for `%s` (%s)", data.FileName, data.EntityName, data.EntityType)
}

func renderDisseminate(action *models.UserAction) (Classification, bool) {
	data := models.DecodeContext[models.DisseminateContext](action.ContextData)
	return message("disseminate `%s` to `%s` from `%s` (%s)",
		strings.Join(data.FileNames(), ","), data.Input.Dissemination, data.EntityName, data.EntityType)
}

func renderExport(action *models.UserAction) (Classification, bool) {
	data := models.DecodeContext[models.ExportContext](action.ContextData)
	return message("asks for `%s` export in `%s`", data.Format, data.EntityName)
}

func renderImport(action *models.UserAction) (Classification, bool) {
	data := models.DecodeContext[models.ImportContext](action.ContextData)
	return message("asks for `%s` import of `%s` in `%s`", data.FileMime, data.FileName, data.EntityName)
}

func renderConnector(kind string) renderFunc {
	return func(action *models.UserAction) (Classification, bool) {
		data := models.DecodeContext[models.ConnectorContext](action.ContextData)
		return message("asks for `%s` %s with connector `%s`", data.EntityName, kind, data.ConnectorName)
	}
}
