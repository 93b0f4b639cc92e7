// internal/server/render.go
package server

import (
	"bytes"
	"html/template"

	"github.com/xkilldash9x/middleman/internal/snapshot"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html data-theme=light>
  <head>
    <title>{{.Title}}</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css">
    <style>
      .vertical-radios { display: flex; flex-direction: column; gap: 1rem; margin-bottom: 1.5rem; }
      .radio-wrapper { display: flex; align-items: center; gap: 0.5rem; }
      .radio-wrapper input[type='radio'] { margin: 0; flex-shrink: 0; }
      .radio-wrapper label { margin: 0; cursor: pointer; line-height: 1.5; }
      .radio-wrapper:hover label { color: var(--pico-primary); }
    </style>
  </head>
  <body>
    <main class="container">
      <section>
        <h2>{{.Title}}</h2>
        <article>
        <form method="POST" action="{{.Action}}">
        {{.Content}}
        </form>
        </article>
      </section>
    </main>
  </body>
</html>
`))

var redirectTemplate = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<body>
  <form id="redirect" action="{{.}}" method="post"></form>
  <script>document.getElementById('redirect').submit();</script>
</body>
</html>
`))

var homeTemplate = template.Must(template.New("home").Parse(`<p>Try these extraction examples:</p>
<ul>{{range .Extraction}}<li><a href="{{.Link}}" target="_blank">{{.Title}}</a></li>{{end}}</ul>
<p>or explore these examples that require sign-in:</p>
<ul>{{range .SignIn}}<li><a href="{{.Link}}" target="_blank">{{.Title}}</a></li>{{end}}</ul>
`))

type example struct {
	Title string
	Link  string
}

var (
	extractionExamples = []example{
		{"NPR Headlines", "/start?location=text.npr.org"},
		{"Slashdot: Most Discussed", "/start?location=technology.slashdot.org"},
		{"ESPN College Football Schedule", "/start?location=espn.com/college-football/schedule"},
		{"NBA Key Dates", "/start?location=nba.com/news/key-dates"},
		{"NYT Best Sellers", "/start?location=www.nytimes.com/books/best-sellers"},
	}
	signInExamples = []example{
		{"BBC Saved Articles", "/start?location=bbc.com/saved"},
		{"Goodreads Bookshelf", "/start?location=goodreads.com/signin"},
		{"Amazon Browsing History", "/start?location=amazon.com/gp/history"},
		{"Gofood Order History", "/start?location=gofood.co.id/en/orders"},
		{"eBird Life List", "/start?location=ebird.org/lifelist"},
		{"Agoda Booking History", "/start?location=agoda.com/account/bookings.html"},
	}
)

// Render wraps content in the standard page. content is trusted markup
// produced by the distiller.
func Render(content, title, action string) ([]byte, error) {
	if title == "" {
		title = snapshot.DefaultTitle
	}
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Title   string
		Action  string
		Content template.HTML
	}{title, action, template.HTML(content)})
	return buf.Bytes(), err
}

func renderRedirect(action string) ([]byte, error) {
	var buf bytes.Buffer
	err := redirectTemplate.Execute(&buf, action)
	return buf.Bytes(), err
}

func renderHome() ([]byte, error) {
	var buf bytes.Buffer
	err := homeTemplate.Execute(&buf, struct {
		Extraction []example
		SignIn     []example
	}{extractionExamples, signInExamples})
	if err != nil {
		return nil, err
	}
	return Render(buf.String(), "", "")
}
