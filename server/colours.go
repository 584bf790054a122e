package server

// ANSI colours for the DEV route listing
const (
	green   = "\033[32m"
	blue    = "\033[34m"
	yellow  = "\033[33m"
	magenta = "\033[35m"
	gray    = "\033[90m"
	reset   = "\033[0m"
)

var methodColors = map[string]string{
	"GET":    green,
	"POST":   blue,
	"DELETE": yellow,
	"PATCH":  magenta,
}
