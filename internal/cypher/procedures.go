package cypher

import (
	"path"
	"strings"
)

// readOnlyProcedures lists procedures known not to write. Patterns use
// path.Match syntax against the lower-cased qualified name. Anything not
// listed is treated as a potential write.
var readOnlyProcedures = []string{
	"db.labels",
	"db.relationshiptypes",
	"db.propertykeys",
	"db.schema.*",
	"db.indexes",
	"db.constraints",
	"db.info",
	"db.ping",
	"db.index.fulltext.querynodes",
	"db.index.fulltext.queryrelationships",
	"db.index.vector.querynodes",
	"db.index.vector.queryrelationships",
	"dbms.components",
	"dbms.procedures",
	"dbms.functions",
	"dbms.info",
	"dbms.queryjmx",
	"apoc.meta.*",
	"apoc.help",
	"apoc.version",
	"apoc.path.*",
	"apoc.neighbors.*",
	"apoc.algo.*",
	"gds.list",
	"gds.version",
	"gds.graph.list",
	"gds.graph.exists",
	"gds.*.stream",
	"gds.*.stats",
	"gds.*.estimate",
	"gds.*.stream.estimate",
	"gds.*.stats.estimate",
}

// IsReadOnlyProcedure reports whether name matches the read-only allow-list.
func IsReadOnlyProcedure(name string) bool {
	name = strings.ToLower(name)
	for _, pattern := range readOnlyProcedures {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
