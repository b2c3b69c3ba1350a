package banner

import (
	"fmt"
	"strings"

	"duelbench/internal/config"
	"duelbench/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
     _            _ _                     _
  __| |_   _  ___| | |__   ___ _ __   ___| |__
 / _' | | | |/ _ \ | '_ \ / _ \ '_ \ / __| '_ \
| (_| | |_| |  __/ | |_) |  __/ | | | (__| | | |
 \__,_|\__,_|\___|_|_.__/ \___|_| |_|\___|_| |_|`

	return "\n" + style.Render(ascii) + "\n"
}

// Header describes the planned run, printed before it starts.
func Header(cfg config.RunConfig, outputDir string) string {
	var sb strings.Builder
	rule := strings.Repeat("=", 70)

	impls := make([]string, len(cfg.Implementations))
	for i, impl := range cfg.Implementations {
		impls[i] = styles.Impl(i).Render(impl.String())
	}
	conns := make([]string, len(cfg.Connections))
	for i, c := range cfg.Connections {
		conns[i] = fmt.Sprint(c)
	}

	fmt.Fprintf(&sb, "\nCOMPARATIVE LOAD TEST\n%s\n", rule)
	fmt.Fprintf(&sb, "Host           : %s@%s (%s)\n", cfg.User, cfg.Host, cfg.Transport)
	fmt.Fprintf(&sb, "Project        : %s\n", cfg.ProjectPath)
	fmt.Fprintf(&sb, "Target         : %s\n", cfg.BaseURL)
	fmt.Fprintf(&sb, "Implementations: %s\n", strings.Join(impls, " vs "))
	fmt.Fprintf(&sb, "Endpoints      : %s\n", strings.Join(cfg.Endpoints, ", "))
	fmt.Fprintf(&sb, "Connections    : %s\n", strings.Join(conns, ", "))
	fmt.Fprintf(&sb, "Threads        : %d\n", cfg.Threads)
	fmt.Fprintf(&sb, "Duration       : %ds per trial, %d trials\n", cfg.DurationSeconds(), cfg.TrialCount())
	fmt.Fprintf(&sb, "Generator      : %s (%s)\n", cfg.GeneratorTool, cfg.GeneratorLocation)
	fmt.Fprintf(&sb, "Output         : %s\n", outputDir)
	fmt.Fprintf(&sb, "%s\n", rule)
	return sb.String()
}
