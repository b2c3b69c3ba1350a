package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// EnvPrefix names the environment layer: ssh.port is read from DUELBENCH_SSH_PORT.
const EnvPrefix = "DUELBENCH"

// Keys understood in the config file, as DUELBENCH_* environment variables and as bound flags.
const (
	KeyHost              = "host"
	KeyUser              = "user"
	KeyTransport         = "transport"
	KeySSHPort           = "ssh.port"
	KeyIdentityFile      = "ssh.identity_file"
	KeyKnownHosts        = "ssh.known_hosts"
	KeyInsecureHostKey   = "ssh.insecure_ignore_host_key"
	KeyDialTimeout       = "ssh.dial_timeout"
	KeyProjectPath       = "project_path"
	KeyPort              = "port"
	KeyBaseURL           = "base_url"
	KeyHealthPath        = "health_path"
	KeyDuration          = "duration"
	KeyConnections       = "connections"
	KeyThreads           = "threads"
	KeyEndpoints         = "endpoints"
	KeyTimeout           = "timeout"
	KeyOutputDir         = "output_dir"
	KeyImplementations   = "implementations"
	KeyImpl              = "impl"
	KeyGeneratorLocation = "generator_location"
	KeyGeneratorTool     = "generator_tool"
	KeyProbeLocation     = "probe_location"
	KeyRemoteTools       = "remote_tools"
	KeySettle            = "delays.settle"
	KeyWarmUp            = "delays.warm_up"
	KeyRecovery          = "delays.recovery"
	KeyCommands          = "commands"
)

// BindEnv turns on the DUELBENCH_* layer for every key, nested ones included.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load layers the config file, environment and flags held by v on top of Default().
// Only keys that are actually set override a default.
func Load(v *viper.Viper) (RunConfig, error) {
	cfg := Default()

	setString(v, KeyHost, &cfg.Host)
	setString(v, KeyUser, &cfg.User)
	setString(v, KeyTransport, &cfg.Transport)
	setString(v, KeyIdentityFile, &cfg.SSH.IdentityFile)
	setString(v, KeyKnownHosts, &cfg.SSH.KnownHostsFile)
	setString(v, KeyProjectPath, &cfg.ProjectPath)
	setString(v, KeyBaseURL, &cfg.BaseURL)
	setString(v, KeyHealthPath, &cfg.HealthPath)
	setString(v, KeyOutputDir, &cfg.OutputDir)
	setString(v, KeyGeneratorLocation, &cfg.GeneratorLocation)
	setString(v, KeyGeneratorTool, &cfg.GeneratorTool)
	setString(v, KeyProbeLocation, &cfg.ProbeLocation)

	if v.IsSet(KeySSHPort) {
		cfg.SSH.Port = v.GetInt(KeySSHPort)
	}
	if v.IsSet(KeyInsecureHostKey) {
		cfg.SSH.InsecureIgnoreHostKey = v.GetBool(KeyInsecureHostKey)
	}
	if v.IsSet(KeyDialTimeout) {
		cfg.SSH.DialTimeout = v.GetDuration(KeyDialTimeout)
	}
	if v.IsSet(KeyPort) {
		cfg.Port = v.GetInt(KeyPort)
	}
	if v.IsSet(KeyDuration) {
		cfg.Duration = v.GetDuration(KeyDuration)
	}
	if v.IsSet(KeyTimeout) {
		cfg.Timeout = v.GetDuration(KeyTimeout)
	}
	if v.IsSet(KeyThreads) {
		cfg.Threads = v.GetInt(KeyThreads)
	}
	if v.IsSet(KeyConnections) {
		conns, err := intList(v, KeyConnections)
		if err != nil {
			return cfg, err
		}
		cfg.Connections = conns
	}
	if v.IsSet(KeyEndpoints) {
		cfg.Endpoints = stringList(v, KeyEndpoints)
	}
	if v.IsSet(KeyRemoteTools) {
		cfg.RemoteTools = stringList(v, KeyRemoteTools)
	}

	if v.IsSet(KeyImplementations) {
		var impls []Implementation
		if err := v.UnmarshalKey(KeyImplementations, &impls); err != nil {
			return cfg, errors.Wrap(err, "reading implementations")
		}
		cfg.Implementations = impls
	}
	// --impl label=binary on the command line wins over the file.
	if v.IsSet(KeyImpl) {
		impls, err := ParseImplementations(stringList(v, KeyImpl))
		if err != nil {
			return cfg, err
		}
		cfg.Implementations = impls
	}

	// Nested sections are read leaf by leaf so DUELBENCH_DELAYS_SETTLE and
	// friends override a single value.
	for key, dst := range map[string]*time.Duration{
		KeySettle:   &cfg.Delays.Settle,
		KeyWarmUp:   &cfg.Delays.WarmUp,
		KeyRecovery: &cfg.Delays.Recovery,
	} {
		if v.IsSet(key) {
			d, err := cast.ToDurationE(v.Get(key))
			if err != nil {
				return cfg, errors.Wrapf(err, "reading %s", key)
			}
			*dst = d
		}
	}
	for name, dst := range map[string]*string{
		"connectivity": &cfg.Commands.Connectivity,
		"tool_check":   &cfg.Commands.ToolCheck,
		"build":        &cfg.Commands.Build,
		"start":        &cfg.Commands.Start,
		"find_pid":     &cfg.Commands.FindPID,
		"kill":         &cfg.Commands.Kill,
		"probe":        &cfg.Commands.Probe,
		"generator":    &cfg.Commands.Generator,
	} {
		setString(v, KeyCommands+"."+name, dst)
	}

	return cfg, nil
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

// stringList reads a list key. Files and flags hold real lists; an environment
// variable is one string, split on commas.
func stringList(v *viper.Viper, key string) []string {
	raw := v.Get(key)
	if s, ok := raw.(string); ok {
		return splitList(s)
	}
	return cast.ToStringSlice(raw)
}

func intList(v *viper.Viper, key string) ([]int, error) {
	raw := v.Get(key)
	s, ok := raw.(string)
	if !ok {
		out, err := cast.ToIntSliceE(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", key)
		}
		return out, nil
	}
	fields := splitList(s)
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := cast.ToIntE(f)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s: %q is not a number", key, f)
		}
		out = append(out, n)
	}
	return out, nil
}

// splitList accepts "a,b", "a b" and "[a,b]"
func splitList(s string) []string {
	s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "["), "]")
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

// ParseImplementations accepts "label=binary" or a bare "binary" (label defaults to the binary).
func ParseImplementations(specs []string) ([]Implementation, error) {
	impls := make([]Implementation, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		label, binary, found := strings.Cut(spec, "=")
		if !found {
			binary = label
		}
		label, binary = strings.TrimSpace(label), strings.TrimSpace(binary)
		if label == "" || binary == "" {
			return nil, errors.Newf("invalid implementation %q, want label=binary", spec)
		}
		impls = append(impls, Implementation{Label: label, Binary: binary})
	}
	return impls, nil
}
