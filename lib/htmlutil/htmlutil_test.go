package htmlutil

import (
	"regexp"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestFindScriptMatch(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<html><head>
		<script>var unrelated = 1;</script>
		<script>
			//<![CDATA[
			var oarsData = {"securityToken":"tok$abc\/123"};
			//]]>
		</script>
		</head><body></body></html>
	`))
	require.NoError(t, err)

	pattern := regexp.MustCompile(`"securityToken":"(?P<token>[^"]*)"`)
	require.Equal(t, `tok$abc\/123`, FindScriptMatch(doc, pattern))

	require.Equal(t, "", FindScriptMatch(doc, regexp.MustCompile(`"missing":"([^"]*)"`)))
}
