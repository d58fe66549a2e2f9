package lifecycle

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"sizif/pkg/checkpoint"
	"sizif/pkg/config"
	"sizif/pkg/logger"
)

// placeholder is {name} or {name:spec}, spec in printf-verb shorthand
// such as .4f or 03d
var placeholder = regexp.MustCompile(`\{(\w+)(?::([^}]+))?\}`)

// EpochHook interprets the save policy at the end of every epoch:
// period gating, best-only monitoring, filename template expansion.
// When a snapshot is written it notifies the store.
type EpochHook struct {
	model  Model
	store  Store
	logger logger.Logger

	monitor         string
	saveBestOnly    bool
	saveWeightsOnly bool
	period          int
	pathTemplate    string

	epochsSinceLastSave int
	best                float64
	improved            func(current, best float64) bool
}

func NewEpochHook(model Model, store Store, policy config.PolicyConfig, log logger.Logger) *EpochHook {
	if log == nil {
		log = logger.GetLogger()
	}

	h := &EpochHook{
		model:           model,
		store:           store,
		logger:          log,
		monitor:         policy.Monitor,
		saveBestOnly:    policy.SaveBestOnly,
		saveWeightsOnly: policy.SaveWeightsOnly,
		period:          policy.Period,
		pathTemplate:    store.CheckpointPath(),
	}
	if h.period < 1 {
		h.period = 1
	}

	mode := policy.Mode
	switch mode {
	case "min", "max":
	default:
		if mode != "auto" && mode != "" {
			log.WithField("mode", mode).Warn("unknown mode, falling back to auto")
		}
		if strings.Contains(h.monitor, "acc") || strings.HasPrefix(h.monitor, "fmeasure") {
			mode = "max"
		} else {
			mode = "min"
		}
	}
	if mode == "max" {
		h.best = math.Inf(-1)
		h.improved = func(current, best float64) bool { return current > best }
	} else {
		h.best = math.Inf(1)
		h.improved = func(current, best float64) bool { return current < best }
	}
	return h
}

// OnEpochEnd is called with the zero-based epoch just finished and its
// metrics. The recorded epoch counter is one-based so a resumed run
// starts at the following epoch.
func (h *EpochHook) OnEpochEnd(epoch int, metrics map[string]float64) error {
	path, saved, err := h.maybeSave(epoch, metrics)
	if err != nil || !saved {
		return err
	}

	params := checkpoint.Params{"epoch": epoch + 1}
	for k, v := range metrics {
		params[k] = v
	}
	return h.store.OnCheckpointWritten(path, params)
}

func (h *EpochHook) maybeSave(epoch int, metrics map[string]float64) (string, bool, error) {
	h.epochsSinceLastSave++
	if h.epochsSinceLastSave < h.period {
		return "", false, nil
	}
	h.epochsSinceLastSave = 0

	path := expandTemplate(h.pathTemplate, epoch+1, metrics)

	if h.saveBestOnly {
		current, ok := metrics[h.monitor]
		if !ok {
			h.logger.WithField("monitor", h.monitor).Warn("monitored metric unavailable, skipping save")
			return "", false, nil
		}
		if !h.improved(current, h.best) {
			h.logger.WithFields(map[string]interface{}{
				"epoch": epoch + 1, "monitor": h.monitor, "best": h.best,
			}).Debug("metric did not improve")
			return "", false, nil
		}
		h.logger.WithFields(map[string]interface{}{
			"epoch": epoch + 1, "monitor": h.monitor, "from": h.best, "to": current,
		}).Info("metric improved, saving model")
		h.best = current
	} else {
		h.logger.WithFields(map[string]interface{}{
			"epoch": epoch + 1, "path": path,
		}).Info("saving model")
	}

	var err error
	if h.saveWeightsOnly {
		err = h.model.SaveWeights(path)
	} else {
		err = h.model.Save(path)
	}
	if err != nil {
		return "", false, fmt.Errorf("save snapshot %s: %w", path, err)
	}
	return path, true, nil
}

// expandTemplate substitutes {epoch} and metric placeholders in a
// checkpoint filename template. An optional spec such as {val_loss:.4f}
// maps onto the matching printf verb; epoch defaults to %d, metrics to
// %g. Unknown placeholders are left as-is.
func expandTemplate(template string, epoch int, metrics map[string]float64) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		name, spec := parts[1], parts[2]

		if name == "epoch" {
			if spec == "" {
				spec = "d"
			}
			return fmt.Sprintf("%"+spec, epoch)
		}
		if v, ok := metrics[name]; ok {
			if spec == "" {
				spec = "g"
			}
			return fmt.Sprintf("%"+spec, v)
		}
		return m
	})
}
