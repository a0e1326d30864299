package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/mnohosten/reactor/pkg/reactive"
)

// jsonScalar carries an arbitrary Go value: collection items have no fixed
// shape, so every field that carries one is typed as opaque JSON rather than
// a generated object type.
var jsonScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "An arbitrary JSON value",
	Serialize: func(value interface{}) interface{} {
		return value
	},
	ParseValue: func(value interface{}) interface{} {
		return value
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		return nil
	},
})

// NewGraphQLSchema builds a schema exposing every collection in registry
// through a snapshot query and a watch subscription. The schema is
// read-only: a reactive.Set is mutated by its producer, not by a GraphQL
// client, so there is no Mutation type.
func NewGraphQLSchema(registry *Registry) (graphql.Schema, error) {
	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Query",
		Description: "Root query type",
		Fields: graphql.Fields{
			"collections": &graphql.Field{
				Type:        graphql.NewList(graphql.NewNonNull(graphql.String)),
				Description: "Names of every registered collection",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return registry.Names(), nil
				},
			},
			"snapshot": &graphql.Field{
				Type:        graphql.NewList(jsonScalar),
				Description: "Current members of a collection",
				Args: graphql.FieldConfigArgument{
					"name": &graphql.ArgumentConfig{
						Type:        graphql.NewNonNull(graphql.String),
						Description: "Collection name",
					},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					name, _ := p.Args["name"].(string)
					set, ok := registry.Get(name)
					if !ok {
						return nil, fmt.Errorf("no such collection %q", name)
					}
					sink := reactive.Snapshot(set)
					defer sink.Close()
					return sink.Items(), nil
				},
			},
		},
	})

	subscriptionType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Subscription",
		Description: "Root subscription type",
		Fields: graphql.Fields{
			"watch": &graphql.Field{
				Type:        jsonScalar,
				Description: "Stream of changed items in a collection, one resolved value per changed event",
				Args: graphql.FieldConfigArgument{
					"name": &graphql.ArgumentConfig{
						Type:        graphql.NewNonNull(graphql.String),
						Description: "Collection name to watch",
					},
				},
				Subscribe: func(p graphql.ResolveParams) (interface{}, error) {
					name, _ := p.Args["name"].(string)
					set, ok := registry.Get(name)
					if !ok {
						return nil, fmt.Errorf("no such collection %q", name)
					}

					out := make(chan watchItem, 16)
					sub := set.Subscribe(reactive.Func[any]{
						Next: func(b reactive.Batch[any]) {
							for _, ev := range b {
								out <- watchItem{op: ev.Op.String(), item: ev.Item}
							}
						},
						Error: func(err error) { close(out) },
					})
					go func() {
						<-p.Context.Done()
						sub.Dispose()
					}()
					return out, nil
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					wi, ok := p.Source.(watchItem)
					if !ok {
						return nil, nil
					}
					return map[string]interface{}{"op": wi.op, "item": wi.item}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:        queryType,
		Subscription: subscriptionType,
	})
}

type watchItem struct {
	op   string
	item any
}

// Handler serves GraphQL queries over HTTP POST through graphql.Do.
// Subscriptions are not run through it, since graphql-go's Subscribe
// channel has no natural HTTP request/response shape; no handler in this
// package runs the watch subscription (ws.go streams collections as plain
// JSON frames, not GraphQL).
type Handler struct {
	schema graphql.Schema
}

// NewGraphQLHandler wraps schema as an http.Handler for POST /graphql.
func NewGraphQLHandler(schema graphql.Schema) *Handler {
	return &Handler{schema: schema}
}

type graphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "GraphQL only accepts POST requests", http.StatusMethodNotAllowed)
		return
	}

	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// GraphiQLHandler serves a minimal GraphiQL playground pointed at /graphql.
func GraphiQLHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(graphiqlHTML))
	}
}

const graphiqlHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>reactor GraphiQL</title>
  <style>body { height: 100vh; margin: 0; } #graphiql { height: 100vh; }</style>
  <script crossorigin src="https://unpkg.com/react@17/umd/react.production.min.js"></script>
  <script crossorigin src="https://unpkg.com/react-dom@17/umd/react-dom.production.min.js"></script>
  <link rel="stylesheet" href="https://unpkg.com/graphiql@1.8.7/graphiql.min.css" />
</head>
<body>
  <div id="graphiql">Loading...</div>
  <script src="https://unpkg.com/graphiql@1.8.7/graphiql.min.js" type="application/javascript"></script>
  <script>
    const fetcher = GraphiQL.createFetcher({ url: '/graphql' });
    ReactDOM.render(
      React.createElement(GraphiQL, { fetcher: fetcher, defaultQuery: '# query { collections }\n' }),
      document.getElementById('graphiql'),
    );
  </script>
</body>
</html>
`
