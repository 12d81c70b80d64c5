package sandbox

import "regexp"

// A RewriteRule is a pure fixed-form-to-fixed-form rewrite applied to note
// content pulled from a remote. Rules are independent of each other; the only
// ordering constraint is that the script-tag transforms run strictly last.
type RewriteRule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// rewriteRules neutralizes executable content in pulled notes. Code fences of
// known macro dialects are renamed to an inert label, and embedded script
// tags are replaced with an inert comment.
var rewriteRules = []RewriteRule{
	{
		Name:        "dataviewjs-fence",
		Pattern:     regexp.MustCompile("(?m)^(\\s*)```dataviewjs[ \t]*$"),
		Replacement: "$1```disabled-dataviewjs",
	},
	{
		Name:        "templater-fence",
		Pattern:     regexp.MustCompile("(?m)^(\\s*)```templater[ \t]*$"),
		Replacement: "$1```disabled-templater",
	},
	{
		Name:        "script-element",
		Pattern:     regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`),
		Replacement: "<!-- script removed -->",
	},
	{
		Name:        "script-open-tag",
		Pattern:     regexp.MustCompile(`(?i)<script\b[^>]*>`),
		Replacement: "<!-- script removed -->",
	},
}

// Sanitize applies every rewrite rule to content, in order, one
// non-overlapping substitution pass per rule.
func Sanitize(content []byte) []byte {
	for _, rule := range rewriteRules {
		content = rule.Pattern.ReplaceAll(content, []byte(rule.Replacement))
	}
	return content
}
