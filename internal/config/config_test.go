package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	input := `
# comment line
[primary]
host = /var/run/postgresql
port = 5432
user = postgres

; another comment
[replica]
host=10.0.0.5
port=5433
dbname=app
password=secret
unknownkey=ignored
`
	clusters, err := Parse(strings.NewReader(input))
	assert.NoError(t, err)
	assert.Len(t, clusters, 2)

	assert.Equal(t, ClusterConfig{Name: "primary", Host: "/var/run/postgresql", Port: "5432", User: "postgres"}, clusters[0])
	assert.Equal(t, ClusterConfig{Name: "replica", Host: "10.0.0.5", Port: "5433", Dbname: "app", Password: "secret"}, clusters[1])
}

func TestParseErrors(t *testing.T) {
	testcases := []struct {
		name  string
		input string
	}{
		{name: "key outside section", input: "host=foo\n"},
		{name: "empty section name", input: "[]\n"},
		{name: "malformed line", input: "[a]\nnotakeyvalue\n"},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.input))
			assert.Error(t, err)
		})
	}
}
