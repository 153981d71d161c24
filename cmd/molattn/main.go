package main

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/FlavioCFOliveira/GoAttention/goattention"
)

func formatRow(row []float64) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = fmt.Sprintf("%.2f", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func main() {
	fmt.Println("=== MoL Attention Training Example ===")

	const (
		seqLen     = 8
		queryWidth = 3
		valueWidth = 2
		mixtures   = 2
		units      = 8
		samples    = 3
	)

	fmt.Printf("Sequence length: %d, mixture components: %d, units: %d\n", seqLen, mixtures, units)
	fmt.Println("Task: steer attention to a query-encoded position")
	fmt.Println("Loss function: MSE")
	fmt.Println("Optimizer: Adam with learning rate 0.05")

	attn, err := goattention.NewMoLAttention(goattention.MoLConfig{
		Units:       units,
		MixtureSize: mixtures,
		QueryWidth:  queryWidth,
		ValueWidth:  valueWidth,
		Seed:        42,
	})
	if err != nil {
		fmt.Printf("Error creating layer: %v\n", err)
		os.Exit(1)
	}

	// One memory sequence, shared by every sample in the batch.
	value := goattention.NewTensor(samples, seqLen, valueWidth)
	for b := 0; b < samples; b++ {
		for t := 0; t < seqLen; t++ {
			row := value.Row(b, t)
			row[0] = math.Sin(0.35 * float64(t))
			row[1] = math.Cos(0.35 * float64(t))
		}
	}

	// Each sample's query encodes the position its context should copy.
	positions := []int{1, 3, 6}
	query := goattention.NewTensor(samples, 1, queryWidth)
	target := goattention.NewTensor(samples, 1, valueWidth)
	for b, p := range positions {
		q := query.Row(b, 0)
		q[0] = float64(p) / seqLen
		q[1] = math.Sin(float64(p))
		q[2] = math.Cos(float64(p))
		copy(target.Row(b, 0), value.Row(b, p))
	}

	state := goattention.NewTensor(samples, 1, mixtures)
	dCtx := goattention.NewTensor(samples, 1, valueWidth)

	trainer := goattention.NewTrainer(attn.Weights(), func() goattention.Optimizer {
		return goattention.Adam(0.05)
	})

	mse := goattention.MSE
	fmt.Println("\nTraining...")
	for epoch := 1; epoch <= 400; epoch++ {
		ctx, err := attn.Forward(query, value, state)
		if err != nil {
			fmt.Printf("Error running forward: %v\n", err)
			os.Exit(1)
		}
		epochLoss := mse.Forward(ctx, target)
		mse.Backward(dCtx, ctx, target)
		if err := attn.CalcGradient(dCtx); err != nil {
			fmt.Printf("Error running backward: %v\n", err)
			os.Exit(1)
		}
		trainer.Step()

		if epoch%50 == 0 {
			fmt.Printf("Epoch %d, Loss: %.6f\n", epoch, epochLoss)
		}
	}

	// Inspect the learned alignments.
	fmt.Println("\nLearned alignments:")
	if _, err := attn.Forward(query, value, state); err != nil {
		fmt.Printf("Error running forward: %v\n", err)
		os.Exit(1)
	}
	for b, p := range positions {
		scores := attn.Scores().Row(b, 0)
		best, bestScore := 0, scores[0]
		for t, s := range scores {
			if s > bestScore {
				best, bestScore = t, s
			}
		}
		fmt.Printf("Sample %d: want position %d, peak at %d (weight %.3f), scores %s\n",
			b, p, best, bestScore, formatRow(scores))
	}

	// Decode a few steps with carried state: the mixture centers advance
	// monotonically through the sequence.
	fmt.Println("\nStepping with carried state:")
	stepper := goattention.NewStepper(attn, samples)
	for step := 1; step <= 3; step++ {
		if _, err := stepper.Step(query, value); err != nil {
			fmt.Printf("Error stepping: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Step %d: sample 0 centers %s\n", step, formatRow(stepper.State().Row(0, 0)))
	}

	// Save the trained layer
	fmt.Println("\nSaving layer to disk...")
	if err := goattention.Save("mol_attention.gob", attn); err != nil {
		fmt.Printf("Error saving layer: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Layer saved successfully!")

	fmt.Println("Loading layer from disk...")
	loaded, err := goattention.Load("mol_attention.gob")
	if err != nil {
		fmt.Printf("Error loading layer: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Layer loaded successfully!")

	// Verify the loaded layer produces the same contexts
	original, err := attn.Forward(query, value, state)
	if err != nil {
		fmt.Printf("Error running forward: %v\n", err)
		os.Exit(1)
	}
	reloaded, err := loaded.Forward(query, value, state)
	if err != nil {
		fmt.Printf("Error running forward: %v\n", err)
		os.Exit(1)
	}

	allMatch := true
	for i, v := range original.Data() {
		if math.Abs(v-reloaded.Data()[i]) > 1e-9 {
			allMatch = false
		}
	}
	if allMatch {
		fmt.Println("\nSUCCESS: All contexts match between original and loaded layer!")
	} else {
		fmt.Println("\nFAILURE: Contexts differ between original and loaded layer!")
	}

	// Export the weights for external tooling
	fmt.Println("\nExporting GGUF (F16)...")
	if err := goattention.ExportGGUF("mol_attention.gguf", "mol_attention", attn.Weights(), goattention.GGUFF16); err != nil {
		fmt.Printf("Error exporting GGUF: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Model exported to mol_attention.gguf")
}
