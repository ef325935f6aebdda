package advisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/render"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultModel     = "gpt-4o-mini"
	maxDocumentBytes = 2 << 20
	maxDocumentChars = 20000
)

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// Documents, when set, is the only place documents are read from.
	Documents DocumentSource
}

// OpenAIProvider answers completions and file analyses with an
// OpenAI-compatible chat completion API.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	timeout   time.Duration
	documents DocumentSource
	fetcher   *http.Client
}

// NewOpenAIProvider creates an OpenAIProvider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		timeout:   cfg.Timeout,
		documents: cfg.Documents,
		fetcher:   newPublicFetcher(),
	}
}

func (p *OpenAIProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// Complete returns the assistant reply for req.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt(req.ConversationType),
	})
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	if len(req.Attachments) > 0 {
		attachToLastUserMessage(messages, req.Attachments)
	}

	return p.chat(ctx, messages)
}

// attachToLastUserMessage turns the latest user turn into multi-part content
// carrying image attachments; other files are referenced by URL.
func attachToLastUserMessage(messages []openai.ChatCompletionMessage, attachments []string) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != openai.ChatMessageRoleUser {
			continue
		}
		parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: messages[i].Content}}
		for _, u := range attachments {
			if IsImage("", u) {
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: u, Detail: openai.ImageURLDetailAuto},
				})
				continue
			}
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: "Attached file: " + u,
			})
		}
		messages[i].Content = ""
		messages[i].MultiContent = parts
		return
	}
}

// Analyze returns feedback on the file at req.FileURL.
func (p *OpenAIProvider) Analyze(ctx context.Context, req FileRequest) (string, error) {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}

	if IsImage(req.FileType, req.FileName) {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: "Please review this file: " + req.FileName},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: req.FileURL, Detail: openai.ImageURLDetailHigh}},
		}
	} else {
		text, err := p.fetchDocumentText(ctx, req)
		if err != nil {
			return "", err
		}
		user.Content = fmt.Sprintf("File name: %s\n\n%s", req.FileName, text)
	}

	return p.chat(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: analysisPrompt},
		user,
	})
}

func (p *OpenAIProvider) chat(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrCompletionFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty chat response", domain.ErrCompletionFailed)
	}

	slog.Debug("chat completion finished",
		"model", p.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) fetchDocumentText(ctx context.Context, req FileRequest) (string, error) {
	var (
		body        []byte
		contentType string
		err         error
	)
	if p.documents != nil {
		body, err = p.readUploaded(req)
	} else {
		body, contentType, err = p.download(ctx, req)
	}
	if err != nil {
		return "", err
	}
	if req.FileType != "" {
		contentType = req.FileType
	}
	return documentText(contentType, firstNonEmpty(req.FileName, req.FileURL), body)
}

func (p *OpenAIProvider) readUploaded(req FileRequest) ([]byte, error) {
	rc, err := p.documents.OpenURL(req.FileURL)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	body, err := io.ReadAll(io.LimitReader(rc, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.FileName, err)
	}
	return body, nil
}

func (p *OpenAIProvider) download(ctx context.Context, req FileRequest) ([]byte, string, error) {
	u, err := url.Parse(req.FileURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("%w: invalid file url", domain.ErrInvalidInput)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid file url: %v", domain.ErrInvalidInput, err)
	}
	resp, err := p.fetcher.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", req.FileName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %s: status %d", req.FileName, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", req.FileName, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// publicOnly is a net.Dialer control hook that refuses loopback, private,
// link-local and other non-public destinations. It runs after DNS
// resolution, on every dial including redirects.
func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: unresolved address %q", domain.ErrInvalidInput, host)
	}
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() || ip.IsInterfaceLocalMulticast() ||
		sharedAddressSpace.Contains(ip) {
		return fmt.Errorf("%w: refusing to fetch from %s", domain.ErrInvalidInput, ip)
	}
	return nil
}

func newPublicFetcher() *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: publicOnly}
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func documentText(contentType, name string, body []byte) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}
	ext := strings.ToLower(path.Ext(stripQuery(name)))

	var text string
	switch {
	case mediaType == "text/html" || ext == ".html" || ext == ".htm":
		text, err = render.ExtractText(string(body))
		if err != nil {
			return "", err
		}
	case strings.HasPrefix(mediaType, "text/") || mediaType == "application/json" ||
		ext == ".txt" || ext == ".md" || ext == ".csv" || ext == ".json":
		text = string(body)
	default:
		return "", fmt.Errorf("%w: cannot read text from %s files", domain.ErrUnsupported, firstNonEmpty(mediaType, ext, "unknown"))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("document has no readable text")
	}
	if r := []rune(text); len(r) > maxDocumentChars {
		text = string(r[:maxDocumentChars])
	}
	return text, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
