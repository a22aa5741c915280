package unicorn

import (
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/zboralski/reentry/internal/arch"
)

// regTables maps canonical register names onto Unicorn register ids.
var regTables = map[arch.ID]map[string]int{
	arch.ARM: {
		"r0": uc.ARM_REG_R0, "r1": uc.ARM_REG_R1, "r2": uc.ARM_REG_R2, "r3": uc.ARM_REG_R3,
		"r4": uc.ARM_REG_R4, "r5": uc.ARM_REG_R5, "r6": uc.ARM_REG_R6, "r7": uc.ARM_REG_R7,
		"r8": uc.ARM_REG_R8, "r9": uc.ARM_REG_R9, "r10": uc.ARM_REG_R10, "r11": uc.ARM_REG_R11,
		"r12": uc.ARM_REG_R12, "sp": uc.ARM_REG_SP, "lr": uc.ARM_REG_LR, "pc": uc.ARM_REG_PC,
		"cpsr": uc.ARM_REG_CPSR,
	},
	arch.ARM64: {
		"x0": uc.ARM64_REG_X0, "x1": uc.ARM64_REG_X1, "x2": uc.ARM64_REG_X2, "x3": uc.ARM64_REG_X3,
		"x4": uc.ARM64_REG_X4, "x5": uc.ARM64_REG_X5, "x6": uc.ARM64_REG_X6, "x7": uc.ARM64_REG_X7,
		"x8": uc.ARM64_REG_X8, "x9": uc.ARM64_REG_X9, "x10": uc.ARM64_REG_X10, "x11": uc.ARM64_REG_X11,
		"x12": uc.ARM64_REG_X12, "x13": uc.ARM64_REG_X13, "x14": uc.ARM64_REG_X14, "x15": uc.ARM64_REG_X15,
		"x16": uc.ARM64_REG_X16, "x17": uc.ARM64_REG_X17, "x18": uc.ARM64_REG_X18, "x19": uc.ARM64_REG_X19,
		"x20": uc.ARM64_REG_X20, "x21": uc.ARM64_REG_X21, "x22": uc.ARM64_REG_X22, "x23": uc.ARM64_REG_X23,
		"x24": uc.ARM64_REG_X24, "x25": uc.ARM64_REG_X25, "x26": uc.ARM64_REG_X26, "x27": uc.ARM64_REG_X27,
		"x28": uc.ARM64_REG_X28, "fp": uc.ARM64_REG_X29, "lr": uc.ARM64_REG_X30, "sp": uc.ARM64_REG_SP,
		"pc": uc.ARM64_REG_PC, "nzcv": uc.ARM64_REG_NZCV,
	},
	arch.X86: {
		// 16-bit
		"ax": uc.X86_REG_AX, "bx": uc.X86_REG_BX, "cx": uc.X86_REG_CX, "dx": uc.X86_REG_DX,
		"si": uc.X86_REG_SI, "di": uc.X86_REG_DI, "bp": uc.X86_REG_BP, "sp": uc.X86_REG_SP,
		"ip": uc.X86_REG_IP, "flags": uc.X86_REG_FLAGS,
		"cs": uc.X86_REG_CS, "ds": uc.X86_REG_DS, "es": uc.X86_REG_ES, "ss": uc.X86_REG_SS,
		// 32-bit
		"eax": uc.X86_REG_EAX, "ebx": uc.X86_REG_EBX, "ecx": uc.X86_REG_ECX, "edx": uc.X86_REG_EDX,
		"esi": uc.X86_REG_ESI, "edi": uc.X86_REG_EDI, "ebp": uc.X86_REG_EBP, "esp": uc.X86_REG_ESP,
		"eip": uc.X86_REG_EIP, "eflags": uc.X86_REG_EFLAGS,
		// 64-bit
		"rax": uc.X86_REG_RAX, "rbx": uc.X86_REG_RBX, "rcx": uc.X86_REG_RCX, "rdx": uc.X86_REG_RDX,
		"rsi": uc.X86_REG_RSI, "rdi": uc.X86_REG_RDI, "rbp": uc.X86_REG_RBP, "rsp": uc.X86_REG_RSP,
		"r8": uc.X86_REG_R8, "r9": uc.X86_REG_R9, "r10": uc.X86_REG_R10, "r11": uc.X86_REG_R11,
		"r12": uc.X86_REG_R12, "r13": uc.X86_REG_R13, "r14": uc.X86_REG_R14, "r15": uc.X86_REG_R15,
		"rip": uc.X86_REG_RIP, "rflags": uc.X86_REG_EFLAGS,
	},
}
