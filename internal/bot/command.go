package bot

import (
	"strings"

	"wabot/internal/domain"
)

// Command is one of the closed set of chat commands. A nil Command means the
// body matched none of them.
type Command interface {
	Name() string
	isCommand()
}

// Download fetches URL and relays it back as media. An empty URL asks for usage.
type Download struct{ URL string }

// StickerToImage converts the quoted (or invoking) sticker to PNG.
type StickerToImage struct{}

// TagAll mentions every participant of a group.
type TagAll struct{}

// ListFiles lists the content directory.
type ListFiles struct{}

// Greeting answers "bonjour" and "salut".
type Greeting struct{}

// Help lists the commands.
type Help struct{}

func (Download) Name() string       { return "dl" }
func (StickerToImage) Name() string { return "sticker2img" }
func (TagAll) Name() string         { return "tagall" }
func (ListFiles) Name() string      { return "listfiles" }
func (Greeting) Name() string       { return "greeting" }
func (Help) Name() string           { return "help" }

func (Download) isCommand()       {}
func (StickerToImage) isCommand() {}
func (TagAll) isCommand()         {}
func (ListFiles) isCommand()      {}
func (Greeting) isCommand()       {}
func (Help) isCommand()           {}

// Classify maps a message body to a command. Matching is on the trimmed body
// and is case-sensitive, except for greetings.
func Classify(body string) Command {
	text := strings.TrimSpace(body)
	if text == "" {
		return nil
	}

	fields := strings.Fields(text)
	if fields[0] == "!dl" {
		if len(fields) > 1 {
			return Download{URL: fields[1]}
		}
		return Download{}
	}

	switch text {
	case "!sticker2img":
		return StickerToImage{}
	case "!tagall":
		return TagAll{}
	case "!listfiles":
		return ListFiles{}
	case "!help":
		return Help{}
	}

	if strings.EqualFold(text, "bonjour") || strings.EqualFold(text, "salut") {
		return Greeting{}
	}
	return nil
}

// ShouldAutoSave reports whether msg carries media that is kept regardless of
// any command in its body.
func ShouldAutoSave(msg domain.Message) bool {
	return msg.Type().IsMedia() || msg.IsViewOnce()
}
