package querybuilder

type oracleGrammar struct {
	baseGrammar
}

var oracleLikeEscaping = map[string]string{
	"%": "!%",
	"_": "!_",
	"!": "!!",
}

// paginate uses the 12c row limiting clause.
func (g *oracleGrammar) paginate(orderBy, limit, offset, sep string) string {
	if limit == "" && offset == "" {
		return orderBy
	}
	return offsetFetch(orderBy, "", limit, offset, sep)
}

func (g *oracleGrammar) likeEscaping() (map[string]string, string) {
	return oracleLikeEscaping, " ESCAPE '!'"
}

func (g *oracleGrammar) renameTable(b *QueryBuilder, oldName, newName string) string {
	return "ALTER TABLE " + b.quoter.QuoteTableName(oldName) + " RENAME TO " + b.quoter.QuoteTableName(newName)
}

func (g *oracleGrammar) alterColumn(b *QueryBuilder, table, column, typ string) (string, error) {
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " MODIFY " + b.quoter.QuoteColumnName(column) + " " + typ, nil
}

func (g *oracleGrammar) dropIndex(b *QueryBuilder, name, _ string) string {
	return "DROP INDEX " + b.quoter.QuoteTableName(name)
}
