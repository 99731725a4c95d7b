// Package gmail implements the mail-provider contract against
// google.golang.org/api/gmail/v1: message listing and hydration, history
// diffs, label modification, sending, token refresh and attachments.
package gmail

import (
	"context"
	"strconv"
	"time"

	"mailsync/internal/apperr"
	"mailsync/internal/provider"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const user = "me"

// batchSize bounds GetMessages hydration groups.
const batchSize = 50

// Adapter implements provider.MailProvider against live Gmail.
type Adapter struct {
	clientID     string
	clientSecret string
}

// New builds an Adapter from OAuth client credentials.
func New(clientID, clientSecret string) *Adapter {
	return &Adapter{clientID: clientID, clientSecret: clientSecret}
}

func (a *Adapter) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		Endpoint:     google.Endpoint,
	}
}

// service builds a *gmail.Service from already-fresh credentials. It
// never triggers oauth2's own silent refresh: token freshness is the
// sync engine's explicit responsibility, so a static token source is
// correct here.
func (a *Adapter) service(ctx context.Context, creds provider.Credentials) (*gmailv1.Service, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	srv, err := gmailv1.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, apperr.New(apperr.ProviderFatal, "build gmail service", err)
	}
	return srv, nil
}

func (a *Adapter) ListMessages(ctx context.Context, creds provider.Credentials, opts provider.ListOptions) (provider.ListResult, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return provider.ListResult{}, err
	}
	call := srv.Users.Messages.List(user).Context(ctx)
	if opts.MaxResults > 0 {
		call = call.MaxResults(opts.MaxResults)
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}
	if opts.Query != "" {
		call = call.Q(opts.Query)
	}
	if len(opts.LabelIDs) > 0 {
		call = call.LabelIds(opts.LabelIDs...)
	}
	resp, err := call.Do()
	if err != nil {
		return provider.ListResult{}, classifyError("list messages", err)
	}
	refs := make([]provider.MessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		refs = append(refs, provider.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return provider.ListResult{Messages: refs, NextPageToken: resp.NextPageToken}, nil
}

func (a *Adapter) GetMessage(ctx context.Context, creds provider.Credentials, id string) (provider.ParsedMessage, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return provider.ParsedMessage{}, err
	}
	msg, err := srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return provider.ParsedMessage{}, classifyError("get message", err)
	}
	return parseMessage(msg), nil
}

// GetMessages hydrates ids concurrently in groups of ≤batchSize;
// per-message failures are dropped from the result and not returned as
// an error.
func (a *Adapter) GetMessages(ctx context.Context, creds provider.Credentials, ids []string) ([]provider.ParsedMessage, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return nil, err
	}
	results := make([]provider.ParsedMessage, 0, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		results = append(results, fetchBatch(ctx, srv, ids[start:end])...)
	}
	return results, nil
}

func fetchBatch(ctx context.Context, srv *gmailv1.Service, ids []string) []provider.ParsedMessage {
	type outcome struct {
		msg provider.ParsedMessage
		ok  bool
	}
	out := make(chan outcome, len(ids))
	sem := make(chan struct{}, 10)
	for _, id := range ids {
		go func(id string) {
			sem <- struct{}{}
			defer func() { <-sem }()
			msg, err := srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
			if err != nil {
				out <- outcome{}
				return
			}
			out <- outcome{msg: parseMessage(msg), ok: true}
		}(id)
	}
	results := make([]provider.ParsedMessage, 0, len(ids))
	for range ids {
		if o := <-out; o.ok {
			results = append(results, o.msg)
		}
	}
	return results
}

// GetHistoryChanges pages Users.History.List from sinceCursor to
// completion, deduplicating id lists and keeping the last cursor seen
// across pages.
func (a *Adapter) GetHistoryChanges(ctx context.Context, creds provider.Credentials, sinceCursor string) (provider.HistoryChanges, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return provider.HistoryChanges{}, err
	}
	startID, err := strconv.ParseUint(sinceCursor, 10, 64)
	if err != nil {
		return provider.HistoryChanges{}, apperr.New(apperr.Validation, "parse history cursor", err)
	}

	added := map[string]struct{}{}
	deleted := map[string]struct{}{}
	labelDeltas := map[string]*provider.LabelDelta{}
	var latestCursor string

	call := srv.Users.History.List(user).StartHistoryId(startID).MaxResults(500).Context(ctx)
	for {
		resp, err := call.Do()
		if err != nil {
			return provider.HistoryChanges{}, classifyHistoryError(err)
		}
		if resp.HistoryId != 0 {
			latestCursor = strconv.FormatUint(resp.HistoryId, 10)
		}
		for _, h := range resp.History {
			if h.Id != 0 {
				latestCursor = strconv.FormatUint(h.Id, 10)
			}
			for _, ma := range h.MessagesAdded {
				if ma.Message != nil {
					added[ma.Message.Id] = struct{}{}
				}
			}
			for _, md := range h.MessagesDeleted {
				if md.Message != nil {
					deleted[md.Message.Id] = struct{}{}
				}
			}
			for _, la := range h.LabelsAdded {
				if la.Message == nil {
					continue
				}
				d := labelDeltaFor(labelDeltas, la.Message.Id)
				d.LabelsAdded = append(d.LabelsAdded, la.LabelIds...)
			}
			for _, lr := range h.LabelsRemoved {
				if lr.Message == nil {
					continue
				}
				d := labelDeltaFor(labelDeltas, lr.Message.Id)
				d.LabelsRemoved = append(d.LabelsRemoved, lr.LabelIds...)
			}
		}
		if resp.NextPageToken == "" {
			break
		}
		call = call.PageToken(resp.NextPageToken)
	}

	changes := provider.HistoryChanges{
		Cursor:          latestCursor,
		MessagesAdded:   dedupKeys(added),
		MessagesDeleted: dedupKeys(deleted),
	}
	for _, d := range labelDeltas {
		changes.LabelsModified = append(changes.LabelsModified, *d)
	}
	return changes, nil
}

func labelDeltaFor(m map[string]*provider.LabelDelta, messageID string) *provider.LabelDelta {
	d, ok := m[messageID]
	if !ok {
		d = &provider.LabelDelta{MessageID: messageID}
		m[messageID] = d
	}
	return d
}

func dedupKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (a *Adapter) ModifyMessageLabels(ctx context.Context, creds provider.Credentials, id string, add, remove []string) error {
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	srv, err := a.service(ctx, creds)
	if err != nil {
		return err
	}
	req := &gmailv1.ModifyMessageRequest{}
	if len(add) > 0 {
		req.AddLabelIds = add
	}
	if len(remove) > 0 {
		req.RemoveLabelIds = remove
	}
	if _, err := srv.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return classifyError("modify message labels", err)
	}
	return nil
}

func (a *Adapter) GetProfile(ctx context.Context, creds provider.Credentials) (provider.Profile, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return provider.Profile{}, err
	}
	p, err := srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return provider.Profile{}, classifyError("get profile", err)
	}
	return provider.Profile{
		Address:       p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
		HistoryCursor: strconv.FormatUint(p.HistoryId, 10),
	}, nil
}

// ExchangeCode trades an OAuth authorization code for an initial token
// pair, for the POST /mailboxes/connect handshake. redirectURI must
// match the value used to obtain code.
func (a *Adapter) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (provider.Credentials, time.Time, error) {
	cfg := a.oauthConfig()
	cfg.RedirectURL = redirectURI
	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	}
	token, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return provider.Credentials{}, time.Time{}, apperr.New(apperr.Unauthorized, "exchange oauth code", err)
	}
	return provider.Credentials{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}, token.Expiry, nil
}

func (a *Adapter) RefreshTokens(ctx context.Context, refreshToken string) (provider.RefreshedTokens, error) {
	token := &oauth2.Token{RefreshToken: refreshToken}
	src := a.oauthConfig().TokenSource(ctx, token)
	refreshed, err := src.Token()
	if err != nil {
		return provider.RefreshedTokens{}, apperr.New(apperr.ProviderFatal, "refresh tokens", err)
	}
	return provider.RefreshedTokens{AccessToken: refreshed.AccessToken, ExpiresAt: refreshed.Expiry}, nil
}

func (a *Adapter) ListLabels(ctx context.Context, creds provider.Credentials) ([]provider.Label, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return nil, err
	}
	resp, err := srv.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, classifyError("list labels", err)
	}
	labels := make([]provider.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, provider.Label{ID: l.Id, Name: l.Name, Type: l.Type})
	}
	return labels, nil
}

func (a *Adapter) GetAttachment(ctx context.Context, creds provider.Credentials, messageID, attachmentID string) ([]byte, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return nil, err
	}
	part, err := srv.Users.Messages.Attachments.Get(user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, classifyError("get attachment", err)
	}
	return decodeBase64URL(part.Data)
}

// classifyError maps a googleapi error's status code to the typed error
// kinds: 5xx/429/network as ProviderTransient, everything else (invalid
// grant, revoked, 4xx other than the history-specific 404) as
// ProviderFatal.
func classifyError(op string, err error) error {
	var gerr *googleapi.Error
	if asGoogleAPIError(err, &gerr) {
		if gerr.Code >= 500 || gerr.Code == 429 {
			return apperr.New(apperr.ProviderTransient, op, err)
		}
		return apperr.New(apperr.ProviderFatal, op, err)
	}
	return apperr.New(apperr.ProviderTransient, op, err)
}

// classifyHistoryError additionally recognizes the 404-class stale
// cursor signal from the history endpoint.
func classifyHistoryError(err error) error {
	var gerr *googleapi.Error
	if asGoogleAPIError(err, &gerr) && gerr.Code == 404 {
		return apperr.New(apperr.ProviderStaleCursor, "get history changes", err)
	}
	return classifyError("get history changes", err)
}

func asGoogleAPIError(err error, target **googleapi.Error) bool {
	if gerr, ok := err.(*googleapi.Error); ok {
		*target = gerr
		return true
	}
	return false
}
