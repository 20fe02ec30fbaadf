package server

// registerHTML is the landing page for backends that support
// self-registration.
const registerHTML = `<!DOCTYPE html>
<html>
<head><title>Freighter registry</title></head>
<body>
<h1>Freighter registry</h1>
<p>Create an account to obtain a publish token:</p>
<form method="post" action="/api/v1/crates/account">
  <label>Username: <input name="username" required></label>
  <button type="submit">Register</button>
</form>
<p>Then log the token into cargo:</p>
<pre>cargo login --registry=&lt;name of the registry&gt;</pre>
</body>
</html>
`
