package server

import (
	"bytes"
	"path"

	"golang.org/x/net/html"
)

// ReloadScript is inserted into served HTML pages.
const ReloadScript = `<script>
(function () {
  var scheme = location.protocol === "https:" ? "wss://" : "ws://";
  function connect() {
    var ws = new WebSocket(scheme + location.host + "` + ReloadPath + `");
    ws.onmessage = function (event) {
      try {
        if (JSON.parse(event.data).type === "reload") { location.reload(); }
      } catch (e) {}
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
</script>
`

// ShouldInject reports whether a request path may be an HTML page:
// no extension (directory indexes) or ".html".
func ShouldInject(urlPath string) bool {
	switch path.Ext(urlPath) {
	case "", ".html":
		return true
	default:
		return false
	}
}

// InjectScript inserts script before the closing body tag of doc. It
// falls back to the closing html tag and then to the end of the
// document. Tags inside comments and script text are not considered.
func InjectScript(doc []byte, script string) []byte {
	z := html.NewTokenizer(bytes.NewReader(doc))

	offset, bodyEnd, htmlEnd := 0, -1, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		size := len(z.Raw())
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			switch string(name) {
			case "body":
				bodyEnd = offset
			case "html":
				htmlEnd = offset
			}
		}
		offset += size
	}

	at := len(doc)
	switch {
	case bodyEnd >= 0:
		at = bodyEnd
	case htmlEnd >= 0:
		at = htmlEnd
	}

	out := make([]byte, 0, len(doc)+len(script))
	out = append(out, doc[:at]...)
	out = append(out, script...)
	return append(out, doc[at:]...)
}
