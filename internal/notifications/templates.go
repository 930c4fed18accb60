package notifications

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evenia/backend/internal/models"
)

// TicketFilename is the name of the attached QR image.
const TicketFilename = "billet.png"

// Content is the data every template sees.
type Content struct {
	FullName   string
	EventTitle string
	Location   string
	StartsAt   string
	Price      string
	TicketURL  string
	EventURL   string
}

// NewContent builds template data for reg in loc. reg.User and reg.Event must be loaded.
func NewContent(reg *models.Registration, baseURL string, loc *time.Location) Content {
	if loc == nil {
		loc = time.UTC
	}
	base := strings.TrimRight(baseURL, "/")
	c := Content{
		EventTitle: reg.Event.Title,
		Location:   reg.Event.Location,
		StartsAt:   FormatDate(reg.Event.StartsAt.In(loc)),
		Price:      FormatPrice(reg.Price),
		TicketURL:  base + "/registrations/" + reg.ID.String() + "/ticket",
		EventURL:   base + "/events/" + reg.Event.Slug,
	}
	if reg.User != nil {
		c.FullName = reg.User.FullName
	}
	return c
}

var (
	weekdays = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}
	months   = [...]string{"janvier", "février", "mars", "avril", "mai", "juin", "juillet", "août", "septembre", "octobre", "novembre", "décembre"}
)

// FormatDate renders t as "vendredi 12 juin 2026 à 18h00".
func FormatDate(t time.Time) string {
	day := fmt.Sprint(t.Day())
	if t.Day() == 1 {
		day = "1er"
	}
	return fmt.Sprintf("%s %s %s %d à %dh%02d", weekdays[t.Weekday()], day, months[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

// FormatPrice renders a price as "12,50 €", or "Gratuit" when zero.
func FormatPrice(p decimal.Decimal) string {
	if !p.IsPositive() {
		return "Gratuit"
	}
	return strings.Replace(p.StringFixed(2), ".", ",", 1) + " €"
}

type template struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
	ticket  bool
}

const layout = `<!doctype html>
<html lang="fr"><body style="font-family:Helvetica,Arial,sans-serif;color:#1f2933">
{{template "body" .}}
<p style="color:#7b8794;font-size:12px">Evenia · {{.EventURL}}</p>
</body></html>`

func mustTemplate(subject, html, text string, ticket bool) template {
	h := htmltemplate.Must(htmltemplate.New("layout").Parse(layout))
	htmltemplate.Must(h.New("body").Parse(html))
	return template{
		subject: texttemplate.Must(texttemplate.New("subject").Parse(subject)),
		html:    h,
		text:    texttemplate.Must(texttemplate.New("text").Parse(text)),
		ticket:  ticket,
	}
}

var templates = map[string]template{
	models.EmailTypeRegistrationConfirmation: mustTemplate(
		`Votre inscription à {{.EventTitle}} est confirmée`,
		`<p>Bonjour {{.FullName}},</p>
<p>Votre inscription à <strong>{{.EventTitle}}</strong> est confirmée.</p>
<p>Rendez-vous le {{.StartsAt}}{{if .Location}}, {{.Location}}{{end}}.<br>Tarif : {{.Price}}</p>
<p>Votre billet est joint à ce message. Présentez le QR code à l'entrée, sur votre téléphone ou imprimé.</p>
<p><a href="{{.TicketURL}}">Voir mon billet</a></p>`,
		`Bonjour {{.FullName}},

Votre inscription à {{.EventTitle}} est confirmée.
Rendez-vous le {{.StartsAt}}{{if .Location}}, {{.Location}}{{end}}.
Tarif : {{.Price}}

Votre billet est joint à ce message. Présentez le QR code à l'entrée.
Voir mon billet : {{.TicketURL}}
`,
		true,
	),
	models.EmailTypeReminder24h: mustTemplate(
		`Rappel : {{.EventTitle}} commence bientôt`,
		`<p>Bonjour {{.FullName}},</p>
<p><strong>{{.EventTitle}}</strong> commence le {{.StartsAt}}{{if .Location}}, {{.Location}}{{end}}.</p>
<p>N'oubliez pas votre billet : le QR code joint sera scanné à l'entrée.</p>
<p><a href="{{.TicketURL}}">Voir mon billet</a></p>`,
		`Bonjour {{.FullName}},

{{.EventTitle}} commence le {{.StartsAt}}{{if .Location}}, {{.Location}}{{end}}.
N'oubliez pas votre billet : le QR code joint sera scanné à l'entrée.
Voir mon billet : {{.TicketURL}}
`,
		true,
	),
	models.EmailTypeCancellation: mustTemplate(
		`Annulation de votre inscription à {{.EventTitle}}`,
		`<p>Bonjour {{.FullName}},</p>
<p>Votre inscription à <strong>{{.EventTitle}}</strong> du {{.StartsAt}} a bien été annulée.</p>
<p>Votre billet n'est plus valable.</p>`,
		`Bonjour {{.FullName}},

Votre inscription à {{.EventTitle}} du {{.StartsAt}} a bien été annulée.
Votre billet n'est plus valable.
`,
		false,
	),
}

// NeedsTicket reports whether emailType carries the QR ticket.
func NeedsTicket(emailType string) bool {
	return templates[emailType].ticket
}

// Render fills the templates of emailType. ticketPNG is attached when the
// type carries a ticket.
func Render(emailType, to string, c Content, ticketPNG []byte) (Message, error) {
	tpl, ok := templates[emailType]
	if !ok {
		return Message{}, fmt.Errorf("unknown email type %q", emailType)
	}
	var subject, html, text bytes.Buffer
	if err := tpl.subject.Execute(&subject, c); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := tpl.html.ExecuteTemplate(&html, "layout", c); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}
	if err := tpl.text.Execute(&text, c); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	msg := Message{To: to, Subject: subject.String(), HTML: html.String(), Text: text.String()}
	if tpl.ticket {
		if len(ticketPNG) == 0 {
			return Message{}, fmt.Errorf("%s requires a ticket image", emailType)
		}
		msg.Attachments = []Attachment{{Filename: TicketFilename, Content: ticketPNG}}
	}
	return msg, nil
}
