package mailer

// welcomeData feeds the "welcome" template.
type welcomeData struct {
	Name string
}

// resetData feeds the "reset" template.
type resetData struct {
	Code    string
	Minutes int
}

// emailTemplates holds every outbound message as named html/template
// definitions. Embedding them as a constant keeps the binary
// self-contained — no template directory to ship or misplace.
//
// html/template (not text/template) auto-escapes interpolated values, so a
// display name like "<script>" renders inert.
const emailTemplates = `
{{define "welcome"}}
<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2933;">
  <h2>Welcome to LearnQuest, {{.Name}}!</h2>
  <p>Your account is ready. Jump in, pick a course, and start earning XP.</p>
  <p style="color: #616e7c; font-size: 13px;">
    If you didn't create this account, you can safely ignore this email.
  </p>
</body>
</html>
{{end}}

{{define "reset"}}
<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2933;">
  <h2>Password reset requested</h2>
  <p>Use this code to reset your LearnQuest password:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 4px;">{{.Code}}</p>
  <p>The code expires in {{.Minutes}} minutes and can be used once.</p>
  <p style="color: #616e7c; font-size: 13px;">
    If you didn't request a reset, ignore this email — your password is unchanged.
  </p>
</body>
</html>
{{end}}
`
