// Package mailbox drives Exchange mailbox changes through a remote
// PowerShell bridge.
package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

type Mailbox interface {
	ConvertToSharedMailbox(ctx context.Context, identity string) error
	// BackupMailboxData queues an export and returns where it will land.
	BackupMailboxData(ctx context.Context, identity string) (string, error)
}

// LogMailbox only logs what it would do. Used in ENV=local.
type LogMailbox struct {
	logger     *slog.Logger
	backupPath string
}

func (m *LogMailbox) ConvertToSharedMailbox(_ context.Context, identity string) error {
	m.logger.Info("convert to shared mailbox (local dev)", "identity", identity)
	return nil
}

func (m *LogMailbox) BackupMailboxData(_ context.Context, identity string) (string, error) {
	path := exportPath(m.backupPath, identity)
	m.logger.Info("backup mailbox (local dev)", "identity", identity, "file_path", path)
	return path, nil
}

// ExchangeBridge posts cmdlet invocations to an HTTP front for an Exchange
// remote PowerShell session. The bridge answers with the cmdlet's error
// stream on failure.
type ExchangeBridge struct {
	client     *http.Client
	url        string
	token      string
	backupPath string
}

type cmdletRequest struct {
	Cmdlet     string         `json:"cmdlet"`
	Parameters map[string]any `json:"parameters"`
}

type cmdletResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (b *ExchangeBridge) ConvertToSharedMailbox(ctx context.Context, identity string) error {
	return b.invoke(ctx, cmdletRequest{
		Cmdlet:     "Set-Mailbox",
		Parameters: map[string]any{"Identity": identity, "Type": "Shared"},
	})
}

func (b *ExchangeBridge) BackupMailboxData(ctx context.Context, identity string) (string, error) {
	path := exportPath(b.backupPath, identity)
	err := b.invoke(ctx, cmdletRequest{
		Cmdlet:     "New-MailboxExportRequest",
		Parameters: map[string]any{"Mailbox": identity, "FilePath": path},
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func (b *ExchangeBridge) invoke(ctx context.Context, cmd cmdletRequest) error {
	buf, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.Cmdlet, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build %s request: %w", cmd.Cmdlet, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Cmdlet, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out cmdletResponse
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode >= http.StatusMultipleChoices || !out.Success {
		if out.Error != "" {
			return bridgeError(out.Error)
		}
		return fmt.Errorf("%s failed with status %d", cmd.Cmdlet, resp.StatusCode)
	}
	return nil
}

// bridgeError keeps the PowerShell error text untouched.
type bridgeError string

func (e bridgeError) Error() string { return string(e) }

func exportPath(base, identity string) string {
	name := strings.NewReplacer("@", "_", "/", "_", `\`, "_").Replace(identity)
	return strings.TrimRight(base, `\`) + `\` + name + ".pst"
}

// NewMailbox returns a LogMailbox for ENV=local, ExchangeBridge otherwise.
func NewMailbox(env, bridgeURL, token, backupPath string, logger *slog.Logger) Mailbox {
	if env == "local" {
		return &LogMailbox{logger: logger.With("component", "mailbox"), backupPath: backupPath}
	}
	return &ExchangeBridge{
		client:     &http.Client{}, // each step call carries its own deadline
		url:        bridgeURL,
		token:      token,
		backupPath: backupPath,
	}
}
