// Package render turns a selected candidate into the caption and photo of
// a channel post. Output is Telegram legacy-Markdown with Italian number
// formatting.
package render

import (
	"fmt"
	"hash/fnv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dealcast/dealcast/internal/model"
)

const (
	// Captions keep the full title up to this many runes, then cut.
	maxTitleRunes = 120

	// Bare image references from the provider are relative to this host.
	imageHost = "https://images-na.ssl-images-amazon.com/images/I/"

	fallbackEmoji = "🔥"
)

// Post is a rendered channel message. ImageURL is empty when the candidate
// carries no image, in which case the caption goes out as a plain message.
type Post struct {
	Caption  string `json:"caption"`
	ImageURL string `json:"image_url,omitempty"`
}

// Renderer builds channel posts from candidates.
type Renderer struct {
	domain string
	tag    string
	loc    *message.Printer
}

// New creates a Renderer that links into the given storefront domain with
// the given affiliate tag.
func New(domain, tag string) *Renderer {
	if domain == "" {
		domain = "amazon.it"
	}
	return &Renderer{
		domain: domain,
		tag:    tag,
		loc:    message.NewPrinter(language.Italian),
	}
}

// Render builds the post for one candidate on one channel.
func (r *Renderer) Render(c *model.Candidate, profile model.ChannelProfile) Post {
	discountEmoji := "⚡"
	if c.DiscountPercent >= 50 {
		discountEmoji = "🔥"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s **%s -%d%% | %s**\n\n",
		pickEmoji(profile.Emojis, c.ProductID), discountEmoji, c.DiscountPercent, truncateTitle(c.Title))
	fmt.Fprintf(&b, "💰 **Prezzo:** ~~%s€~~ → **%s€**\n",
		r.loc.Sprintf("%.2f", c.ReferencePriceMajor()), r.loc.Sprintf("%.2f", c.CurrentPriceMajor()))

	if c.Rating > 0 {
		b.WriteString(strings.Repeat("⭐", int(c.Rating)))
		b.WriteString(r.loc.Sprintf(" %.1f/5", c.Rating))
		if c.ReviewCount > 0 {
			b.WriteString(r.loc.Sprintf(" (%d recensioni)", c.ReviewCount))
		}
		b.WriteString("\n")
	}

	if c.IsFlash {
		b.WriteString("\n⚡ **OFFERTA LAMPO** - Scade tra poco!\n")
	}

	fmt.Fprintf(&b, "\n👉 [Acquista Ora](%s)", r.ProductLink(c.ProductID))

	return Post{
		Caption:  b.String(),
		ImageURL: imageURL(c.ImageRef),
	}
}

// ProductLink returns the affiliate-tagged product URL.
func (r *Renderer) ProductLink(productID string) string {
	link := fmt.Sprintf("https://www.%s/dp/%s", r.domain, productID)
	if r.tag != "" {
		link += "?tag=" + r.tag
	}
	return link
}

// pickEmoji chooses from the channel's set deterministically per product,
// so repeated previews of the same deal render identically.
func pickEmoji(emojis []string, productID string) string {
	if len(emojis) == 0 {
		return fallbackEmoji
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(productID))
	return emojis[h.Sum32()%uint32(len(emojis))]
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= maxTitleRunes {
		return title
	}
	return string(runes[:maxTitleRunes]) + "..."
}

func imageURL(ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http") {
		return ref
	}
	return imageHost + ref
}
