// Package cot 多步推理接口
package cot
