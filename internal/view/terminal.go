// Package view renders the chat widget into a terminal. Terminal implements
// the session's Surface contract on top of a plain io.Writer: the identity
// prompt, the inline collision message, the user-list table and the
// append-only message stream. Entries belonging to the session's own identity
// are labeled "You" instead of the raw name.
package view

import (
	"fmt"
	"io"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"github.com/watercooler/chat-widget/internal/protocol"
)

// selfLabel replaces the raw name on entries owned by the current identity.
const selfLabel = "You"

const identityPrompt = "Pick a nickname (e.g. Ann) and press Enter:"

// Terminal writes the chat view to out, usually stdout. It keeps no state of
// its own; everything rendered comes from the session's calls.
type Terminal struct {
	out io.Writer
}

// NewTerminal creates a Terminal writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// ShowIdentityPrompt renders the identity-entry surface.
func (t *Terminal) ShowIdentityPrompt() {
	fmt.Fprintln(t.out, color.New(color.FgCyan).Render("── watercooler chat ──"))
	fmt.Fprintln(t.out, identityPrompt)
}

// ShowIdentityError renders the inline nickname-collision message. The
// identity entry stays active so the user can type another name.
func (t *Terminal) ShowIdentityError() {
	fmt.Fprintln(t.out, color.New(color.FgRed).Render("That nickname is already taken, pick another one"))
}

// ClearIdentityError removes the collision message. A scrollback terminal
// cannot unprint, so the prompt is repeated to mark the error as stale.
func (t *Terminal) ClearIdentityError() {
	fmt.Fprintln(t.out, identityPrompt)
}

// ShowChat replaces the identity prompt with the chat view.
func (t *Terminal) ShowChat() {
	fmt.Fprintln(t.out, color.New(color.FgCyan).Render("── you are in, type a message and press Enter ──"))
}

// RenderUserList redraws the online-user list from scratch. The entry whose
// name equals self renders as "You".
func (t *Terminal) RenderUserList(users []protocol.User, self string) {
	table := tablewriter.NewWriter(t.out)
	table.SetHeader([]string{"Online"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")

	for _, user := range users {
		name := user.Name
		if name == self {
			name = color.New(color.FgGreen).Render(selfLabel)
		}
		table.Append([]string{name})
	}
	table.Render()
}

// AppendMessage appends one entry to the message stream. Prior entries are
// never touched.
func (t *Terminal) AppendMessage(msg protocol.Message, self string) {
	name := msg.Name
	if name == self {
		name = color.New(color.FgGreen).Render(selfLabel)
	}
	fmt.Fprintf(t.out, "[%s] %s: %s\n", msg.Time, name, msg.Body)
}
