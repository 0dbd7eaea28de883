// Package chart mines metrics out of assistant replies and renders
// them as bar charts through the external rendering service. Charting
// is opportunistic: no metrics means no chart, and render failures
// never fail a turn.
package chart
