package commands

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/odrift/odrift/pkg/compare"
	"github.com/odrift/odrift/pkg/config"
	"github.com/odrift/odrift/pkg/rpc"
	"github.com/odrift/odrift/pkg/schema"
	"github.com/odrift/odrift/pkg/session"
)

// fileConfig is the YAML shape of the optional connection config file.
type fileConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// resolveConfig builds the connection config. The config file, when given,
// takes precedence over the environment.
func resolveConfig() (rpc.Config, error) {
	cfg, _ := session.ConfigFromEnv()

	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return rpc.Config{}, fmt.Errorf("cannot read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return rpc.Config{}, fmt.Errorf("malformed config file %s: %w", configPath, err)
		}
		if fc.URL != "" {
			cfg.URL = fc.URL
		}
		if fc.Database != "" {
			cfg.Database = fc.Database
		}
		if fc.Username != "" {
			cfg.Username = fc.Username
		}
		if fc.Password != "" {
			cfg.Password = fc.Password
		}
	}
	return cfg, nil
}

// openSession authenticates a fresh session. The caller owns the session
// and should defer Logout. Extra client options let apply wire in its
// metrics recorder.
func openSession(ctx context.Context, clientOpts ...rpc.Option) (*session.Session, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}

	opts := append([]rpc.Option{rpc.WithLogger(cliLogger())}, clientOpts...)
	sess := session.New(
		session.WithLogger(cliLogger()),
		session.WithClientFactory(func() rpc.Client {
			return rpc.NewHTTPClient(opts...)
		}),
	)
	if _, err := sess.Authenticate(ctx, cfg); err != nil {
		return nil, err
	}
	return sess, nil
}

// loadState parses and merges the desired-state sources.
func loadState(sources []string) (*config.State, error) {
	loader := config.NewLoader(config.WithLogger(cliLogger()))
	return loader.Load(sources...)
}

// snapshot reads the actual server values of every record the desired state
// names. Only desired fields are fetched; records missing server-side simply
// do not appear in the returned map.
func snapshot(ctx context.Context, client rpc.Client, st *config.State) (map[string]map[int64]rpc.ValueMap, error) {
	actual := make(map[string]map[int64]rpc.ValueMap, len(st.Models))

	for model, records := range st.Models {
		ids := make([]int64, 0, len(records))
		fieldSet := map[string]bool{}
		for id, values := range records {
			ids = append(ids, id)
			for field := range values {
				fieldSet[field] = true
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		fields := make([]string, 0, len(fieldSet))
		for field := range fieldSet {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		recs, err := client.Read(ctx, model, ids, fields)
		if err != nil {
			return nil, err
		}

		byID := make(map[int64]rpc.ValueMap, len(recs))
		for _, rec := range recs {
			id, ok := rpc.AsInt(rec["id"])
			if !ok {
				continue
			}
			byID[id] = rec
		}
		actual[model] = byID
	}
	return actual, nil
}

// compareOptions builds compare options from live field metadata. Failing
// introspection degrades to a metadata-free compare rather than aborting.
func compareOptions(ctx context.Context, intr *schema.Introspector, model string) compare.Options {
	meta, err := intr.GetModelMetadata(ctx, model, schema.GetFieldsOptions{})
	if err != nil {
		logger := cliLogger()
		logger.Warn().Err(err).Str("model", model).Msg("field introspection failed; comparing without metadata")
		return compare.Options{}
	}

	fieldMeta := make(map[string]compare.FieldMeta, len(meta.Fields))
	for name, field := range meta.Fields {
		fieldMeta[name] = compare.FieldMeta{
			Type:     field.Type,
			ReadOnly: field.ReadOnly,
			Computed: field.Compute != "",
		}
	}
	return compare.Options{FieldMetadata: fieldMeta}
}

// computeDiffs produces the full diff set for a desired state, in model name
// order so output is deterministic.
func computeDiffs(ctx context.Context, sess *session.Session, st *config.State) ([]compare.ModelDiff, error) {
	client, err := sess.Client()
	if err != nil {
		return nil, err
	}
	intr, err := sess.Introspector()
	if err != nil {
		return nil, err
	}

	actual, err := snapshot(ctx, client, st)
	if err != nil {
		return nil, err
	}

	models := make([]string, 0, len(st.Models))
	for model := range st.Models {
		models = append(models, model)
	}
	sort.Strings(models)

	var diffs []compare.ModelDiff
	for _, model := range models {
		opts := compareOptions(ctx, intr, model)
		diffs = append(diffs, compare.Records(model, st.Models[model], actual[model], opts)...)
	}
	return diffs, nil
}
