package agent

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"xmtp-agents/gm-agent/pkg/xmtp"
)

const banner = "\x1b[38;2;252;76;52m" + `
        ██╗  ██╗███╗   ███╗████████╗██████╗
        ╚██╗██╔╝████╗ ████║╚══██╔══╝██╔══██╗
         ╚███╔╝ ██╔████╔██║   ██║   ██████╔╝
         ██╔██╗ ██║╚██╔╝██║   ██║   ██╔═══╝
        ██╔╝ ██╗██║ ╚═╝ ██║   ██║   ██║
        ╚═╝  ╚═╝╚═╝     ╚═╝   ╚═╝   ╚═╝
` + "\x1b[0m"

// Details is the summary printed once a client is ready.
type Details struct {
	InboxID             string
	Version             string
	Address             string
	Conversations       int
	Installations       int
	InstallationID      string
	KeyPackageCreated   time.Time
	KeyPackageExpiresAt time.Time
	Network             xmtp.Env
}

func (d Details) URL() string {
	return "http://xmtp.chat/dm/" + d.Address
}

// CollectDetails gathers Details from the client. Key package times default
// to now when the network reports no lifetime.
func CollectDetails(ctx context.Context, c *xmtp.Client) (Details, error) {
	d := Details{
		InboxID:        c.InboxID(),
		Version:        c.Version(),
		Address:        c.AccountIdentifier().Identifier,
		InstallationID: c.InstallationID(),
		Network:        c.Env(),
	}

	convs, err := c.Conversations().List(ctx, xmtp.ListOptions{})
	if err != nil {
		return Details{}, err
	}
	d.Conversations = len(convs)

	st, err := c.Preferences().InboxState(ctx, false)
	if err != nil {
		return Details{}, err
	}
	d.Installations = len(st.Installations)

	now := time.Now()
	d.KeyPackageCreated, d.KeyPackageExpiresAt = now, now
	statuses, err := c.KeyPackageStatusesForInstallationIDs(ctx, []string{d.InstallationID})
	if err != nil {
		return Details{}, err
	}
	if s, ok := statuses[d.InstallationID]; ok && s.Lifetime != nil {
		d.KeyPackageCreated = s.Lifetime.NotBefore
		d.KeyPackageExpiresAt = s.Lifetime.NotAfter
	}
	return d, nil
}

// WriteDetails prints the banner and details block.
func WriteDetails(w io.Writer, d Details) error {
	const layout = "2006-01-02 15:04:05 MST"
	var b strings.Builder
	b.WriteString(banner)
	fmt.Fprintf(&b, "\n    ✓ XMTP Client:\n")
	fmt.Fprintf(&b, "    • InboxId: %s\n", d.InboxID)
	fmt.Fprintf(&b, "    • Version: %s\n", d.Version)
	fmt.Fprintf(&b, "    • Address: %s\n", d.Address)
	fmt.Fprintf(&b, "    • Conversations: %d\n", d.Conversations)
	fmt.Fprintf(&b, "    • Installations: %d\n", d.Installations)
	fmt.Fprintf(&b, "    • InstallationId: %s\n", d.InstallationID)
	fmt.Fprintf(&b, "    • Key Package created: %s\n", d.KeyPackageCreated.Local().Format(layout))
	fmt.Fprintf(&b, "    • Key Package valid until: %s\n", d.KeyPackageExpiresAt.Local().Format(layout))
	fmt.Fprintf(&b, "    • Networks: %s\n", d.Network)
	fmt.Fprintf(&b, "    • URL: %s\n", d.URL())
	_, err := io.WriteString(w, b.String())
	return err
}
