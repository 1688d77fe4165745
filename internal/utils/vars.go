package utils

import "regexp"

// DefaultChunkSize is the number of bytes a download task reads and writes
// per loop iteration. It bounds pause and cancel latency.
const DefaultChunkSize = 64 * 1024
const DefaultPageSize = 10
const LogFile = ".vidgrab.log"
const ToolUserAgent = "vidgrab/1.0"

var GlobalDebugFlag = false

var invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
var trailingDotsSpaces = regexp.MustCompile(`[. ]+$`)

// Local-only User-Agent list
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36 Edg/132.0.0.0",
	"curl/7.88.1",
	"Wget/1.21.4",
}
