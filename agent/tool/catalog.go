package tool

import (
	"context"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"github.com/tanpawarit/Chative-Appointment-Agent/agent/booking"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/sqldb"
)

const (
	ToolCreateAppointment = "create_appointment"
	ToolRetrieve          = "retrieve"
	ToolListTables        = "sql_db_list_tables"
	ToolSchema            = "sql_db_schema"
	ToolQuery             = "sql_db_query"
)

// Booker books one appointment per call.
type Booker interface {
	Book(ctx context.Context, req booking.Request) (*booking.Result, error)
}

// Database is the read-only SQL capability.
type Database interface {
	ListTables(ctx context.Context) ([]string, error)
	TableSchemas(ctx context.Context, names []string) ([]sqldb.TableSchema, error)
	Query(ctx context.Context, query string) (*sqldb.QueryResult, error)
}

// Deps are the collaborators behind the tools. A nil collaborator removes
// its tools from the catalog.
type Deps struct {
	Booker    Booker
	Retriever retriever.Retriever
	Database  Database

	RetrieveTopK int
}

func bookingInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolCreateAppointment,
		Desc: "Book an appointment. Only call after availability for the date and time was confirmed in the SQL database.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"customer_cpf":     {Type: schema.String, Desc: "Customer CPF", Required: true},
			"customer_name":    {Type: schema.String, Desc: "Customer full name, needed to register a new customer"},
			"service_name":     {Type: schema.String, Desc: "Name of the requested service", Required: true},
			"professional_cpf": {Type: schema.String, Desc: "CPF of the professional; omit to let the system pick the only professional offering the service"},
			"date":             {Type: schema.String, Desc: "Appointment date", Required: true},
			"time":             {Type: schema.String, Desc: "Appointment time", Required: true},
		}),
	}
}

func retrieveInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolRetrieve,
		Desc: "Search the business knowledge base and return the most relevant passages.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {Type: schema.String, Desc: "Natural language query", Required: true},
		}),
	}
}

func sqlInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name:        ToolListTables,
			Desc:        "List the tables of the SQL database as a comma-separated string.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		{
			Name: ToolSchema,
			Desc: "Return the schema and sample rows of the given tables. Call sql_db_list_tables first.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"table_names": {Type: schema.String, Desc: "Comma-separated table names", Required: true},
			}),
		},
		{
			Name: ToolQuery,
			Desc: "Run a read-only SQL query and return the rows as JSON. On error, rewrite the query and try again.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "A syntactically correct read-only SQL query", Required: true},
			}),
		},
	}
}

func infosFor(deps Deps) []*schema.ToolInfo {
	var infos []*schema.ToolInfo
	if deps.Retriever != nil {
		infos = append(infos, retrieveInfo())
	}
	if deps.Database != nil {
		infos = append(infos, sqlInfos()...)
	}
	if deps.Booker != nil {
		infos = append(infos, bookingInfo())
	}
	return infos
}
