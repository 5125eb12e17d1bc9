package auth

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Parley - Sign In</title></head>
<body>
  <h1>Sign in to Parley</h1>
  <form method="post" action="/login">
    <input type="hidden" name="callback_uri" value="{{ .Callback }}" />
    <label>Email address <input type="email" name="email" required autofocus /></label>
    <button type="submit">Send login code</button>
  </form>
</body>
</html>
`))

var loginCodePage = template.Must(template.New("logincode").Parse(`<!DOCTYPE html>
<html>
<head><title>Parley - Enter Code</title></head>
<body>
  <h1>Check your email</h1>
  <p>Enter the 6 digit code we just sent you.</p>
  <form method="post" action="/login/code">
    <input type="hidden" name="callback_uri" value="{{ .Callback }}" />
    <label>Code <input type="text" name="code" inputmode="numeric" required autofocus /></label>
    <button type="submit">Sign in</button>
  </form>
</body>
</html>
`))

func renderLoginPage(callback string) []byte {
	return renderPage(loginPage, callback)
}

func renderLoginCodePage(callback string) []byte {
	return renderPage(loginCodePage, callback)
}

func renderPage(tmpl *template.Template, callback string) []byte {
	buf := &bytes.Buffer{}
	if err := tmpl.Execute(buf, struct{ Callback string }{Callback: callback}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func renderLoginEmail(code int64) []byte {
	return []byte(strings.Join([]string{
		"Here is your login code:",
		fmt.Sprintf("%d", code),
	}, "\n"))
}
